// Package httpapi is the HTTP surface of the auth core: the login endpoint,
// the three-stage request authorization pipeline, and operational endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"aftervisit.org/internal/auth"
	"aftervisit.org/internal/obs"
	"aftervisit.org/internal/throttle"
)

const serviceName = "aftervisit-api"

// ReadyProbe checks downstream readiness (database ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles everything the API serves.
type Deps struct {
	ReadyProbe    ReadyProbe
	Version       string
	Authenticator *auth.Authenticator
	Tokens        *auth.TokenService
	Delegated     *auth.DelegatedVerifier
	Users         auth.CredentialStore
	Tenants       auth.TenantDirectory

	// Throttle is optional; nil disables the pre-auth login throttle.
	Throttle *throttle.Limiter

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
}

// New wires routes. Stage order on protected routes is fixed:
// authenticate, then role check, then tenant isolation.
func New(deps Deps) *API {
	if deps.RateLimitPerSecond <= 0 {
		deps.RateLimitPerSecond = 20
	}
	if deps.RateLimitBurst <= 0 {
		deps.RateLimitBurst = 40
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:  http.NewServeMux(),
		deps: deps,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	a.mux.Handle("/v1/me", a.Authenticate(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("GET /v1/tenants/{id}/config",
		a.Authenticate(RequireRoles(auth.HumanRoles...)(RequireTenant(http.HandlerFunc(a.handleTenantConfig)))))
	a.mux.Handle("POST /v1/users/{id}/unlock",
		a.Authenticate(RequireRoles(auth.RoleTenantAdmin, auth.RoleSystemAdmin)(RequireTenant(http.HandlerFunc(a.handleUnlockUser)))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, a.deps.MaxBodyBytes)
	h = RateLimit(h, a.deps.RateLimitBurst, a.deps.RateLimitPerSecond)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- operational handlers ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.ReadyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// sentinelMessage strips the package prefix from an auth sentinel so the
// wire carries the bare taxonomy message.
func sentinelMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
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

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
