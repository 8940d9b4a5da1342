package httpapi

import (
	"errors"
	"net/http"

	"notara.org/internal/auth"
	"notara.org/internal/ledger"
)

const sessionCookie = "notara_session"

// withSession resolves the session cookie, if any, into an Identity on the
// request context. Credential failures fall through without an identity so
// protected handlers can answer with the same uniform 401. Failures that are
// not about the credential itself, like a ledger outage during role
// resolution, must not masquerade as 401: the caller holds a valid session
// and retrying later would succeed, so those map to upstream statuses here.
// Role values are re-derived by the auth service on every request, never
// read back from the cookie.
func (a *API) withSession(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := a.auth.CurrentUser(r.Context(), cookie.Value)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
		case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrInvalidToken):
			next.ServeHTTP(w, r)
		default:
			handleLedgerError(w, r, err)
		}
	})
}

// requireIdentity fetches the resolved caller or answers 401. The body is
// identical for missing, expired and malformed sessions.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return identity, true
}

// requireRole layers a role check on top of requireIdentity.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...ledger.Role) (auth.Identity, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return auth.Identity{}, false
	}
	for _, role := range roles {
		if identity.Role == role {
			return identity, true
		}
	}
	writeError(w, r, http.StatusForbidden, "insufficient role")
	return auth.Identity{}, false
}

func (a *API) setSessionCookie(w http.ResponseWriter, session auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
