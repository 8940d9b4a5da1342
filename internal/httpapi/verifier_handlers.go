package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"notara.org/internal/audit"
	"notara.org/internal/auth"
	"notara.org/internal/ledger"
	"notara.org/internal/verifiers"
)

type decisionRequest struct {
	ID   string `json:"id"`
	Note string `json:"note"`
}

type addVerifierRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Domain  string `json:"domain"`
}

func (a *API) handleVerifierRequest(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitVerifierRequest(w, r)
	case http.MethodGet:
		a.verifierRequestStatus(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) submitVerifierRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var sub verifiers.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req, err := a.verifiers.Submit(r.Context(), identity, sub)
	if err != nil {
		handleVerifiersError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "verifiers.request.submit", map[string]any{
		"request_id_ref": req.ID,
		"domain":         req.Domain,
	})
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) verifierRequestStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	req, err := a.verifiers.StatusFor(r.Context(), identity)
	if err != nil {
		handleVerifiersError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleVerifiersPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := requireRole(w, r, ledger.RoleAdmin)
	if !ok {
		return
	}
	pending, err := a.verifiers.ListPending(r.Context(), identity)
	if err != nil {
		handleVerifiersError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*verifiers.Request{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (a *API) handleVerifierApprove(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.decisionPrelude(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, http.StatusBadRequest, "id is required")
		return
	}

	txHash, err := a.verifiers.Approve(r.Context(), identity, req.ID, req.Note)
	if err != nil {
		handleVerifiersError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "verifiers.request.approve", map[string]any{
		"request_id_ref": req.ID,
		"tx_hash":        txHash,
	})
	writeJSON(w, http.StatusOK, map[string]any{"txHash": txHash})
}

func (a *API) handleVerifierReject(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.decisionPrelude(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, http.StatusBadRequest, "id is required")
		return
	}

	if err := a.verifiers.Reject(r.Context(), identity, req.ID, req.Note); err != nil {
		handleVerifiersError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "verifiers.request.reject", map[string]any{
		"request_id_ref": req.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "rejected"})
}

func (a *API) handleVerifierAdd(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.decisionPrelude(w, r)
	if !ok {
		return
	}

	var req addVerifierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	txHash, err := a.verifiers.AddDirect(r.Context(), identity, req.Address, req.Name, req.Domain)
	if err != nil {
		handleVerifiersError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "verifiers.add", map[string]any{
		"address": strings.ToLower(strings.TrimSpace(req.Address)),
		"tx_hash": txHash,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"txHash": txHash})
}

func (a *API) decisionPrelude(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return auth.Identity{}, false
	}
	return requireRole(w, r, ledger.RoleAdmin)
}

func handleVerifiersError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, verifiers.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, verifiers.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, verifiers.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, verifiers.ErrAlreadyPending),
		errors.Is(err, verifiers.ErrAlreadyElevated),
		errors.Is(err, verifiers.ErrNotPending):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		handleLedgerError(w, r, err)
	}
}
