package httpapi

import (
	"net/http"
	"testing"

	"aftervisit.org/internal/auth"
)

func roleUser(role auth.Role, tenantID string) *auth.User {
	return &auth.User{
		ID:       "u-" + string(role),
		TenantID: tenantID,
		Username: string(role) + ".user",
		Name:     "Test " + string(role),
		Role:     role,
		Active:   true,
	}
}

// The unlock route allows tenant and system administrators only.
func TestRequireRolesMatrix(t *testing.T) {
	target := roleUser(auth.RoleClinician, "mercy-general")
	target.ID = "u-target"
	target.Username = "locked.user"
	target.Locked = true

	cases := []struct {
		role auth.Role
		want int
	}{
		{auth.RolePatient, http.StatusForbidden},
		{auth.RoleClinician, http.StatusForbidden},
		{auth.RoleExpert, http.StatusForbidden},
		{auth.RoleTenantAdmin, http.StatusOK},
		{auth.RoleSystemAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			caller := roleUser(tc.role, "mercy-general")
			if tc.role == auth.RoleSystemAdmin {
				caller.TenantID = ""
			}
			env := newTestEnv(t, newFakeUsers(caller, target), nil)
			token := env.sessionToken(t, caller)

			rec := env.do(t, http.MethodPost, "/v1/users/u-target/unlock", token, "mercy-general", "")
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestRequireTenantIsolation(t *testing.T) {
	cases := []struct {
		name   string
		role   auth.Role
		tenant string
		header string
		want   int
	}{
		{"clinician own tenant", auth.RoleClinician, "mercy-general", "mercy-general", http.StatusOK},
		{"clinician missing header", auth.RoleClinician, "mercy-general", "", http.StatusBadRequest},
		{"clinician foreign tenant", auth.RoleClinician, "mercy-general", "other-clinic", http.StatusForbidden},
		{"patient own tenant", auth.RolePatient, "mercy-general", "mercy-general", http.StatusOK},
		{"patient missing header", auth.RolePatient, "mercy-general", "", http.StatusBadRequest},
		{"patient foreign tenant", auth.RolePatient, "mercy-general", "other-clinic", http.StatusForbidden},
		{"expert own tenant", auth.RoleExpert, "mercy-general", "mercy-general", http.StatusOK},
		{"expert missing header", auth.RoleExpert, "mercy-general", "", http.StatusBadRequest},
		{"expert foreign tenant", auth.RoleExpert, "mercy-general", "other-clinic", http.StatusForbidden},
		{"tenant admin own tenant", auth.RoleTenantAdmin, "mercy-general", "mercy-general", http.StatusOK},
		{"tenant admin missing header", auth.RoleTenantAdmin, "mercy-general", "", http.StatusBadRequest},
		{"tenant admin foreign tenant", auth.RoleTenantAdmin, "mercy-general", "other-clinic", http.StatusForbidden},
		{"system admin crosses tenants", auth.RoleSystemAdmin, "", "other-clinic", http.StatusOK},
		{"system admin without header", auth.RoleSystemAdmin, "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := roleUser(tc.role, tc.tenant)
			env := newTestEnv(t, newFakeUsers(caller), nil)
			token := env.sessionToken(t, caller)

			path := "/v1/tenants/mercy-general/config"
			if tc.role == auth.RoleSystemAdmin {
				path = "/v1/tenants/other-clinic/config"
			}
			rec := env.do(t, http.MethodGet, path, token, tc.header, "")
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

// Each pipeline stage rejects with the message of its taxonomy error, so
// clients can branch on the body as well as the status.
func TestPipelineRejectionMessages(t *testing.T) {
	caller := roleUser(auth.RolePatient, "mercy-general")
	env := newTestEnv(t, newFakeUsers(caller), nil)
	token := env.sessionToken(t, caller)

	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		header  string
		want    int
		wantMsg error
	}{
		{"no credentials", http.MethodGet, "/v1/me", "", "", http.StatusUnauthorized, auth.ErrAuthenticationRequired},
		{"role denied", http.MethodPost, "/v1/users/u-x/unlock", token, "mercy-general", http.StatusForbidden, auth.ErrForbidden},
		{"tenant undeclared", http.MethodGet, "/v1/tenants/mercy-general/config", token, "", http.StatusBadRequest, auth.ErrMissingTenantHeader},
		{"tenant mismatch", http.MethodGet, "/v1/tenants/mercy-general/config", token, "other-clinic", http.StatusForbidden, auth.ErrTenantAccessDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.path, tc.token, tc.header, "")
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeBody(t, rec, &body)
			if want := sentinelMessage(tc.wantMsg); body.Error != want {
				t.Fatalf("error message %q, want %q", body.Error, want)
			}
		})
	}
}

// A clinician session cannot read another tenant's config even when the
// header matches its own tenant; the path decides the resource.
func TestTenantConfigCrossTenantPath(t *testing.T) {
	caller := roleUser(auth.RoleClinician, "mercy-general")
	env := newTestEnv(t, newFakeUsers(caller), nil)
	token := env.sessionToken(t, caller)

	rec := env.do(t, http.MethodGet, "/v1/tenants/other-clinic/config", token, "mercy-general", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
}

func TestServicePrincipalBypassesRolesAndTenant(t *testing.T) {
	target := roleUser(auth.RoleClinician, "mercy-general")
	target.ID = "u-target"
	target.Locked = true

	provider := &fakeProvider{claims: &auth.ProviderClaims{
		Issuer:        "https://accounts.google.com",
		Email:         "ops@aftervisit-prod.iam.gserviceaccount.com",
		EmailVerified: true,
	}}
	env := newTestEnv(t, newFakeUsers(target), provider)
	token := delegatedTestToken(t)

	// No role, no tenant header; the delegated identity passes both stages.
	rec := env.do(t, http.MethodPost, "/v1/users/u-target/unlock", token, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if target.Locked {
		t.Fatalf("target still locked")
	}
	if target.UpdatedBy != "ops@aftervisit-prod.iam.gserviceaccount.com" {
		t.Fatalf("unexpected unlock actor: %q", target.UpdatedBy)
	}
}

func TestUnlockCrossTenantReadsAsMissing(t *testing.T) {
	admin := roleUser(auth.RoleTenantAdmin, "mercy-general")
	foreign := roleUser(auth.RoleClinician, "other-clinic")
	foreign.ID = "u-foreign"
	foreign.Locked = true

	env := newTestEnv(t, newFakeUsers(admin, foreign), nil)
	token := env.sessionToken(t, admin)

	rec := env.do(t, http.MethodPost, "/v1/users/u-foreign/unlock", token, "mercy-general", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	if !foreign.Locked {
		t.Fatalf("foreign account must stay locked")
	}

	rec = env.do(t, http.MethodPost, "/v1/users/u-gone/unlock", token, "mercy-general", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing user status %d, want 404", rec.Code)
	}
}

func TestUnlockBySystemAdmin(t *testing.T) {
	admin := roleUser(auth.RoleSystemAdmin, "")
	target := roleUser(auth.RoleClinician, "other-clinic")
	target.ID = "u-target"
	target.Locked = true
	target.FailedAttempts = 3

	env := newTestEnv(t, newFakeUsers(admin, target), nil)
	token := env.sessionToken(t, admin)

	rec := env.do(t, http.MethodPost, "/v1/users/u-target/unlock", token, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if target.Locked || target.FailedAttempts != 0 {
		t.Fatalf("unlock did not clear state: %+v", target)
	}
	if target.UpdatedBy != admin.ID {
		t.Fatalf("unexpected actor: %q", target.UpdatedBy)
	}
}
