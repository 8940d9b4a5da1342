package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"notara.org/internal/auth"
	"notara.org/internal/docs"
	"notara.org/internal/obs"
	"notara.org/internal/stream"
	"notara.org/internal/verifiers"
)

// ReadyProbe checks the mirror database before /readyz reports ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// ChainProbe optionally checks the ledger RPC as part of readiness.
type ChainProbe interface {
	Ping(ctx context.Context) error
}

// Config tunes the HTTP layer.
type Config struct {
	Version        string
	MaxUploadBytes int64 // multipart uploads on /v1/docs/pin
	MaxBodyBytes   int64 // everything else
	RateBurst      int
	RatePerSecond  int
	AllowedOrigins []string
	CookieSecure   bool
}

func (c *Config) defaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 32 << 20
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 50
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 25
	}
}

// API is the HTTP layer over the auth, document and verifier services.
type API struct {
	mux        *http.ServeMux
	cfg        Config
	readyProbe ReadyProbe
	chainProbe ChainProbe
	auth       *auth.Service
	docs       *docs.Service
	verifiers  *verifiers.Service
	stream     *stream.Stream
}

// Option configures the API.
type Option func(*API)

// WithChainProbe includes the ledger RPC in the readiness check.
func WithChainProbe(p ChainProbe) Option {
	return func(a *API) { a.chainProbe = p }
}

// WithStream enables the document event SSE endpoint.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.stream = s }
}

func New(cfg Config, rp ReadyProbe, authSvc *auth.Service, docsSvc *docs.Service, verifierSvc *verifiers.Service, opts ...Option) *API {
	cfg.defaults()
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		readyProbe: rp,
		auth:       authSvc,
		docs:       docsSvc,
		verifiers:  verifierSvc,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// wallet auth
	a.mux.HandleFunc("/v1/auth/request-nonce", a.handleRequestNonce)
	a.mux.HandleFunc("/v1/auth/verify-signature", a.handleVerifySignature)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// documents
	a.mux.HandleFunc("/v1/docs/pin", a.handlePin)
	a.mux.HandleFunc("/v1/docs/save", a.handleSave)
	a.mux.HandleFunc("/v1/docs/exists", a.handleExists)
	a.mux.HandleFunc("/v1/docs/pending", a.handlePending)
	a.mux.HandleFunc("/v1/docs/mine", a.handleMine)
	a.mux.HandleFunc("/v1/docs/key/", a.handleKey)
	a.mux.HandleFunc("/v1/docs/ipfs/", a.handleIPFS)
	a.mux.HandleFunc("/v1/docs/sync-verified", a.handleSyncVerified)
	a.mux.HandleFunc("/v1/docs/revoke-root", a.handleRevokeRoot)
	a.mux.HandleFunc("/v1/docs/stream", a.Stream)

	// verifier elevation workflow
	a.mux.HandleFunc("/v1/verifiers/request", a.handleVerifierRequest)
	a.mux.HandleFunc("/v1/verifiers/pending", a.handleVerifiersPending)
	a.mux.HandleFunc("/v1/verifiers/approve", a.handleVerifierApprove)
	a.mux.HandleFunc("/v1/verifiers/reject", a.handleVerifierReject)
	a.mux.HandleFunc("/v1/verifiers/add", a.handleVerifierAdd)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes, a.cfg.MaxUploadBytes)
	h = RateLimit(h, a.cfg.RateBurst, a.cfg.RatePerSecond)
	h = CORS(h, a.cfg.AllowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "notara-api",
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	if a.chainProbe != nil {
		if err := a.chainProbe.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "notara-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.cfg.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
