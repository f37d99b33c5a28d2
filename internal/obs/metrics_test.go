package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/auth/login":                "/v1/auth/login",
		"/v1/me":                        "/v1/me",
		"/v1/tenants/demo/config":       "/v1/tenants/:id/config",
		"/v1/users/01ABC/unlock":        "/v1/users/:id/unlock",
		"/v1/tenants/demo/extra":        "/v1/tenants/demo/extra",
		"/v1/auth/login?redirect=false": "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
