package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aftervisit.org/internal/auth"
)

type fakeUsers struct {
	users map[string]*auth.User
}

func newFakeUsers(users ...*auth.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*auth.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByTenantAndUsername(_ context.Context, tenantID, username string) (*auth.User, error) {
	for _, u := range f.users {
		if u.Username != username {
			continue
		}
		if u.TenantID == tenantID || (u.TenantID == "" && u.Role == auth.RoleSystemAdmin) {
			return u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) Find(_ context.Context, userID string) (*auth.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) RecordFailure(_ context.Context, userID string, threshold int, lockReason string) (int, bool, error) {
	u, ok := f.users[userID]
	if !ok {
		return 0, false, auth.ErrNotFound
	}
	u.FailedAttempts++
	if u.FailedAttempts >= threshold {
		u.Locked = true
		u.LockReason = lockReason
	}
	return u.FailedAttempts, u.Locked, nil
}

func (f *fakeUsers) RecordSuccess(_ context.Context, userID string) error {
	if u, ok := f.users[userID]; ok {
		u.FailedAttempts = 0
		return nil
	}
	return auth.ErrNotFound
}

func (f *fakeUsers) Unlock(_ context.Context, userID, actor string) error {
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Locked = false
	u.FailedAttempts = 0
	u.UpdatedBy = actor
	return nil
}

type fakeTenants struct {
	configs map[string]*auth.TenantConfig
}

func (f *fakeTenants) GetTenantConfig(_ context.Context, tenantID string) (*auth.TenantConfig, error) {
	if cfg, ok := f.configs[tenantID]; ok {
		return cfg, nil
	}
	return nil, auth.ErrNotFound
}

type fakeProvider struct {
	claims *auth.ProviderClaims
	err    error
}

func (f *fakeProvider) TokenInfo(_ context.Context, _ string) (*auth.ProviderClaims, error) {
	return f.claims, f.err
}

func (f *fakeProvider) VerifyIDToken(_ context.Context, _, _ string) (*auth.ProviderClaims, error) {
	return f.claims, f.err
}

type testEnv struct {
	api     *API
	handler http.Handler
	tokens  *auth.TokenService
	users   *fakeUsers
	tenants *fakeTenants
}

func newTestEnv(t *testing.T, users *fakeUsers, provider auth.IdentityProvider) *testEnv {
	t.Helper()
	if users == nil {
		users = newFakeUsers()
	}
	tenants := &fakeTenants{configs: map[string]*auth.TenantConfig{
		"mercy-general": {ID: "mercy-general", Name: "Mercy General", Branding: auth.DefaultBranding("mercy-general")},
	}}
	tokens := auth.NewTokenService(auth.TokenConfig{Secret: "test-secret"})
	quiet := log.New(io.Discard, "", 0)
	authenticator, err := auth.NewAuthenticator(users, tenants, tokens, auth.WithAuthenticatorLogger(quiet))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	var delegated *auth.DelegatedVerifier
	if provider != nil {
		delegated = auth.NewDelegatedVerifier(provider, auth.DelegatedVerifierConfig{}, auth.WithDelegatedLogger(quiet))
	}
	api := New(Deps{
		Version:       "test",
		Authenticator: authenticator,
		Tokens:        tokens,
		Delegated:     delegated,
		Users:         users,
		Tenants:       tenants,
	})
	return &testEnv{api: api, handler: api.Handler(), tokens: tokens, users: users, tenants: tenants}
}

func (e *testEnv) sessionToken(t *testing.T, user *auth.User) string {
	t.Helper()
	token, _, err := e.tokens.Issue(auth.Claims{
		UserID:          user.ID,
		TenantID:        user.TenantID,
		Username:        user.Username,
		Name:            user.Name,
		Role:            user.Role,
		LinkedPatientID: user.LinkedPatientID,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token, tenantHeader string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tenantHeader != "" {
		req.Header.Set(TenantHeader, tenantHeader)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

// delegatedTestToken builds a structurally valid provider token whose
// audience routes it to the delegated verification path.
func delegatedTestToken(t *testing.T) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"aud":"https://api.aftervisit.org","iss":"https://accounts.google.com"}`))
	return header + "." + payload + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func clinicianUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &auth.User{
		ID:           "u-1",
		TenantID:     "mercy-general",
		Username:     "s.johnson",
		Name:         "Sarah Johnson",
		Role:         auth.RoleClinician,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/healthz", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	var health map[string]any
	decodeBody(t, rec, &health)
	if health["service"] != "aftervisit-api" {
		t.Fatalf("unexpected health payload: %v", health)
	}

	rec = env.do(t, http.MethodGet, "/readyz", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/info", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("info status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/nope", "", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status %d", rec.Code)
	}
}
