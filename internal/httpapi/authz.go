package httpapi

import (
	"net/http"
	"strings"

	"aftervisit.org/internal/auth"
)

// TenantHeader declares the tenant a request operates on.
const TenantHeader = "X-Tenant-ID"

// RequireRoles is stage B of the pipeline: the caller's role must be on the
// operation's allow-list. Service principals are pre-trusted infrastructure
// and always pass.
func RequireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if principal.IsService() {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[principal.Role()]; !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="aftervisit"`)
				writeError(w, r, http.StatusForbidden, sentinelMessage(auth.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenant is stage C of the pipeline: the declared tenant header must
// equal the caller's own tenant. Service principals and system
// administrators are exempt; cross-tenant access is their defining
// privilege.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}
		if principal.IsService() || principal.Role() == auth.RoleSystemAdmin {
			next.ServeHTTP(w, r)
			return
		}

		declared := strings.TrimSpace(r.Header.Get(TenantHeader))
		if declared == "" {
			writeError(w, r, http.StatusBadRequest, sentinelMessage(auth.ErrMissingTenantHeader))
			return
		}
		if declared != principal.TenantID() {
			writeError(w, r, http.StatusForbidden, sentinelMessage(auth.ErrTenantAccessDenied))
			return
		}
		next.ServeHTTP(w, r)
	})
}
