package httpapi

import (
	"net/http"
	"strings"

	"notara.org/internal/audit"
	"notara.org/internal/auth"
)

type nonceRequest struct {
	Address string `json:"address"`
}

type nonceResponse struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type verifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

func (a *API) handleRequestNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req nonceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	address := auth.CanonicalAddress(req.Address)
	if !auth.ValidAddress(address) {
		writeError(w, r, http.StatusBadRequest, "a valid wallet address is required")
		return
	}

	nonce, err := a.auth.RequestNonce(r.Context(), address)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{
		Address: address,
		Nonce:   nonce,
		Message: auth.LoginMessage(nonce),
	})
}

func (a *API) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Signature) == "" {
		writeError(w, r, http.StatusBadRequest, "address and signature are required")
		return
	}

	session, err := a.auth.VerifySignature(r.Context(), req.Address, req.Signature)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.session.issued", map[string]any{
		"address": session.Identity.Address,
	})

	a.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, session.Identity)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// Stateless tokens: logout just drops the cookie.
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}
