package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"notara.org/internal/audit"
	"notara.org/internal/auth"
	"notara.org/internal/blob"
	"notara.org/internal/docs"
	"notara.org/internal/ledger"
)

type saveRequest struct {
	RootHash    string     `json:"rootHash"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	FileCID     string     `json:"fileCid"`
	MetaCID     string     `json:"metaCid"`
	FileName    string     `json:"fileName"`
	FileType    string     `json:"fileType"`
	IVBase64    string     `json:"ivBase64"`
	TxHash      string     `json:"txHash"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

type syncVerifiedRequest struct {
	VersionHash string `json:"versionHash"`
	Verified    bool   `json:"verified"`
}

type revokeRequest struct {
	RootHash string `json:"rootHash"`
	Reason   string `json:"reason"`
}

func (a *API) handlePin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(a.cfg.MaxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "read file part: "+err.Error())
		return
	}

	req := docs.PinRequest{
		Content:      content,
		RootHash:     strings.ToLower(strings.TrimSpace(r.FormValue("rootHash"))),
		AESKeyBase64: r.FormValue("aesKeyBase64"),
		IVBase64:     r.FormValue("ivBase64"),
		Domain:       strings.ToLower(strings.TrimSpace(r.FormValue("domain"))),
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		FileName:     header.Filename,
		FileType:     header.Header.Get("Content-Type"),
	}

	// Refuse a duplicate before burning pin quota on it.
	if req.RootHash != "" {
		exists, err := a.docs.Exists(r.Context(), req.RootHash)
		if err != nil {
			handleDocsError(w, r, err)
			return
		}
		if exists {
			writeError(w, r, http.StatusConflict, "document already exists")
			return
		}
	}

	res, err := a.docs.PinAndRegister(r.Context(), identity, req)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "docs.pin", map[string]any{
		"root_hash": req.RootHash,
		"file_cid":  res.FileCID,
		"meta_cid":  res.MetaCID,
	})
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.docs.FinalizeUpload(r.Context(), identity, docs.FinalizeRequest{
		RootHash:    req.RootHash,
		Domain:      strings.ToLower(strings.TrimSpace(req.Domain)),
		Title:       req.Title,
		Description: req.Description,
		FileCID:     req.FileCID,
		MetaCID:     req.MetaCID,
		FileName:    req.FileName,
		FileType:    req.FileType,
		IVBase64:    req.IVBase64,
		TxHash:      req.TxHash,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		handleDocsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "docs.save", map[string]any{
		"root_hash": strings.ToLower(strings.TrimSpace(req.RootHash)),
		"tx_hash":   req.TxHash,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"status": "saved"})
}

func (a *API) handleExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rootHash := r.URL.Query().Get("rootHash")
	exists, err := a.docs.Exists(r.Context(), rootHash)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

func (a *API) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	pending, err := a.docs.ListPendingForReviewer(r.Context(), identity)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}
	if pending == nil {
		pending = []docs.PendingDoc{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (a *API) handleMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	uploads, err := a.docs.ListUploads(r.Context(), identity)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}
	if uploads == nil {
		uploads = []docs.DocumentRoot{}
	}
	writeJSON(w, http.StatusOK, uploads)
}

func (a *API) handleKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	versionHash := strings.TrimPrefix(r.URL.Path, "/v1/docs/key/")
	if versionHash == "" || strings.Contains(versionHash, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	rec, err := a.docs.ReleaseKey(r.Context(), identity, versionHash)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "docs.key.release", map[string]any{
		"version_hash": strings.ToLower(versionHash),
	})
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleIPFS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	cid := strings.TrimPrefix(r.URL.Path, "/v1/docs/ipfs/")
	if cid == "" || strings.Contains(cid, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	body, contentType, err := a.docs.FetchBlob(r.Context(), cid)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = io.Copy(w, body)
}

func (a *API) handleSyncVerified(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := requireRole(w, r, ledger.RoleVerifier, ledger.RoleAdmin)
	if !ok {
		return
	}

	var req syncVerifiedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.docs.SyncVerificationStatus(r.Context(), identity, req.VersionHash, req.Verified); err != nil {
		handleDocsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "docs.verify.sync", map[string]any{
		"version_hash": strings.ToLower(strings.TrimSpace(req.VersionHash)),
		"verified":     req.Verified,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "synced"})
}

func (a *API) handleRevokeRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := requireRole(w, r, ledger.RoleAdmin)
	if !ok {
		return
	}

	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	txHash, err := a.docs.RevokeRoot(r.Context(), identity, req.RootHash, req.Reason)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "docs.revoke", map[string]any{
		"root_hash": strings.ToLower(strings.TrimSpace(req.RootHash)),
		"tx_hash":   txHash,
	})
	writeJSON(w, http.StatusOK, map[string]any{"txHash": txHash})
}

// --- error mapping / shared helpers ---

func handleDocsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, docs.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, docs.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, docs.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, docs.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, blob.ErrUnavailable):
		writeError(w, r, http.StatusBadGateway, "storage provider unavailable")
	default:
		handleLedgerError(w, r, err)
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		handleLedgerError(w, r, err)
	}
}

func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, ledger.ErrTxFailed):
		writeError(w, r, http.StatusBadGateway, err.Error())
	case errors.Is(err, ledger.ErrNoSigner):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
