package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"aftervisit.org/internal/audit"
	"aftervisit.org/internal/auth"
	"aftervisit.org/internal/obs"
	"aftervisit.org/internal/throttle"
)

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type userPayload struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id,omitempty"`
	Username        string    `json:"username"`
	Name            string    `json:"name"`
	Role            auth.Role `json:"role"`
	LinkedPatientID string    `json:"linked_patient_id,omitempty"`
}

type tenantPayload struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Branding auth.Branding `json:"branding"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresIn int64         `json:"expires_in"`
	User      userPayload   `json:"user"`
	Tenant    tenantPayload `json:"tenant"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tenantID := strings.TrimSpace(req.TenantID)
	username := strings.TrimSpace(strings.ToLower(req.Username))
	ip := clientIP(r)

	if a.deps.Throttle != nil {
		if err := a.deps.Throttle.Allow(r.Context(), tenantID, username, ip); err != nil {
			if errors.Is(err, throttle.ErrThrottled) {
				obs.ObserveLogin("throttled")
				writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
				return
			}
			// Throttle backend down: fail open, the per-account lock still
			// holds.
			obs.Logger().Printf("login throttle check: %v", err)
		}
	}

	result, err := a.deps.Authenticator.Login(r.Context(), tenantID, username, req.Password)
	if err != nil {
		a.rejectLogin(w, r, tenantID, username, ip, err)
		return
	}

	if a.deps.Throttle != nil {
		if err := a.deps.Throttle.Reset(r.Context(), tenantID, username, ip); err != nil {
			obs.Logger().Printf("login throttle reset: %v", err)
		}
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"tenant_id": result.User.TenantID,
		"user_id":   result.User.ID,
		"username":  result.User.Username,
		"role":      result.User.Role,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresIn: result.ExpiresIn,
		User: userPayload{
			ID:              result.User.ID,
			TenantID:        result.User.TenantID,
			Username:        result.User.Username,
			Name:            result.User.Name,
			Role:            result.User.Role,
			LinkedPatientID: result.User.LinkedPatientID,
		},
		Tenant: tenantPayload{
			ID:       result.Tenant.ID,
			Name:     result.Tenant.Name,
			Branding: result.Tenant.Branding,
		},
	})
}

// rejectLogin maps an authenticator error to the caller-facing taxonomy and
// records the failed attempt. Nothing beyond the taxonomy message leaves the
// boundary.
func (a *API) rejectLogin(w http.ResponseWriter, r *http.Request, tenantID, username, ip string, err error) {
	if a.deps.Throttle != nil {
		if terr := a.deps.Throttle.RecordFailure(r.Context(), tenantID, username, ip); terr != nil {
			obs.Logger().Printf("login throttle record: %v", terr)
		}
	}

	fields := map[string]any{
		"tenant_id": tenantID,
		"username":  username,
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		obs.ObserveLogin("invalid_credentials")
		fields["reason"] = "invalid_credentials"
		_ = audit.LogEvent(r.Context(), "auth.login.failed", fields)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountDisabled):
		obs.ObserveLogin("disabled")
		fields["reason"] = "account_disabled"
		_ = audit.LogEvent(r.Context(), "auth.login.failed", fields)
		writeError(w, r, http.StatusForbidden, "account disabled")
	case errors.Is(err, auth.ErrAccountLocked):
		obs.ObserveLogin("locked")
		fields["reason"] = "account_locked"
		_ = audit.LogEvent(r.Context(), "auth.login.failed", fields)
		writeError(w, r, http.StatusLocked, "account locked")
	case errors.Is(err, auth.ErrTenantNotFound):
		obs.ObserveLogin("tenant_not_found")
		fields["reason"] = "tenant_not_found"
		_ = audit.LogEvent(r.Context(), "auth.login.failed", fields)
		writeError(w, r, http.StatusNotFound, "tenant not found")
	default:
		obs.ObserveLogin("error")
		obs.Logger().Printf("login for %s/%s: %v", tenantID, username, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	if principal.IsService() {
		writeJSON(w, http.StatusOK, map[string]any{
			"kind":  "service",
			"email": principal.Service.Email,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind": "user",
		"user": userPayload{
			ID:              principal.Claims.UserID,
			TenantID:        principal.Claims.TenantID,
			Username:        principal.Claims.Username,
			Name:            principal.Claims.Name,
			Role:            principal.Claims.Role,
			LinkedPatientID: principal.Claims.LinkedPatientID,
		},
	})
}

func (a *API) handleTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.PathValue("id"))
	if tenantID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant id is required")
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	if !principal.IsService() && principal.Role() != auth.RoleSystemAdmin && principal.TenantID() != tenantID {
		writeError(w, r, http.StatusForbidden, sentinelMessage(auth.ErrTenantAccessDenied))
		return
	}

	cfg, err := a.deps.Tenants.GetTenantConfig(r.Context(), tenantID)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			obs.Logger().Printf("tenant config lookup for %s: %v", tenantID, err)
		}
		cfg = auth.FallbackTenantConfig(tenantID)
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("id"))
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user id is required")
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())

	user, err := a.deps.Users.Find(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	// Tenant admins can only unlock accounts inside their own tenant. A
	// cross-tenant id reads as absent so existence does not leak.
	if !principal.IsService() && principal.Role() == auth.RoleTenantAdmin && user.TenantID != principal.TenantID() {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	actor := principal.UserID()
	if principal.IsService() {
		actor = principal.Service.Email
	}
	if err := a.deps.Users.Unlock(r.Context(), userID, actor); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.unlocked", map[string]any{
		"target_user_id": userID,
		"tenant_id":      user.TenantID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "unlocked",
		"user_id": userID,
	})
}
