package auth

import "context"

// Principal is the caller identity resolved by the authentication stage:
// either a human user carrying verified session claims, or a service caller
// recognized through the delegated trust path.
type Principal struct {
	Claims  *Claims
	Service *DelegatedIdentity
}

// UserPrincipal wraps verified session claims.
func UserPrincipal(claims *Claims) Principal {
	return Principal{Claims: claims}
}

// ServicePrincipal wraps a verified delegated identity.
func ServicePrincipal(identity *DelegatedIdentity) Principal {
	return Principal{Service: identity}
}

// IsService reports whether the caller is pre-trusted infrastructure.
func (p Principal) IsService() bool {
	return p.Service != nil
}

// Role returns the caller's role, or empty for service principals.
func (p Principal) Role() Role {
	if p.Claims == nil {
		return ""
	}
	return p.Claims.Role
}

// TenantID returns the caller's tenant, or empty for service principals and
// system administrators.
func (p Principal) TenantID() string {
	if p.Claims == nil {
		return ""
	}
	return p.Claims.TenantID
}

// UserID returns the caller's user id, or empty for service principals.
func (p Principal) UserID() string {
	if p.Claims == nil {
		return ""
	}
	return p.Claims.UserID
}

type principalContextKey struct{}
type tokenContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
