package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"aftervisit.org/internal/auth"
	"aftervisit.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authenticate is stage A of the pipeline: resolve a caller identity from
// the bearer token, trying the platform session path first and the delegated
// identity path second. Both failing rejects the request before any role or
// tenant check runs.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r)
			return
		}

		if claims, err := a.deps.Tokens.Verify(token); err == nil {
			obs.ObserveTokenVerification("session", "ok")
			ctx := auth.ContextWithPrincipal(r.Context(), auth.UserPrincipal(claims))
			ctx = auth.ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		obs.ObserveTokenVerification("session", "invalid")

		if a.deps.Delegated != nil {
			identity, err := a.deps.Delegated.Verify(r.Context(), token)
			if err == nil {
				obs.ObserveTokenVerification("delegated", "ok")
				ctx := auth.ContextWithPrincipal(r.Context(), auth.ServicePrincipal(identity))
				ctx = auth.ContextWithToken(ctx, token)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !errors.Is(err, auth.ErrNotDelegatedToken) {
				obs.ObserveTokenVerification("delegated", "invalid")
			}
		}

		unauthorized(w, r)
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="aftervisit"`)
	writeError(w, r, http.StatusUnauthorized, sentinelMessage(auth.ErrAuthenticationRequired))
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
