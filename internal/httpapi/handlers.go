package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"sentra.org/internal/auth"
	"sentra.org/internal/ledger"
	"sentra.org/internal/oauth"
	"sentra.org/internal/obs"
)

// API is the HTTP layer over the auth service and the ledger.
type API struct {
	mux      *http.ServeMux
	auth     *auth.Service
	ledger   ledger.Service
	provider oauth.Provider
	version  string
}

// Option configures optional API collaborators.
type Option func(*API)

// WithProvider enables the federated sign-in endpoint.
func WithProvider(p oauth.Provider) Option {
	return func(a *API) { a.provider = p }
}

// WithVersion stamps /healthz and /v1/info responses.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

func New(authSvc *auth.Service, led ledger.Service, opts ...Option) *API {
	a := &API{
		mux:     http.NewServeMux(),
		auth:    authSvc,
		ledger:  led,
		version: "dev",
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerify)
	a.mux.HandleFunc("/v1/auth/audit", a.handleAudit)
	if a.provider != nil {
		a.mux.HandleFunc("/v1/auth/federated", a.handleFederated)
	}

	a.mux.HandleFunc("/v1/ledger/deposit", a.handleDeposit)
	a.mux.HandleFunc("/v1/ledger/transfer", a.handleTransfer)
	a.mux.HandleFunc("/v1/ledger/balance/", a.handleBalance)
	a.mux.HandleFunc("/v1/ledger/transactions", a.handleTransactions)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 60, 30)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sentra-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	// All state is in-process; once the handler is serving, it is ready.
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "sentra-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
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
