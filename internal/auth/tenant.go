package auth

import (
	"fmt"
	"strings"
)

// ResolveEffectiveTenantID picks the tenant a session is issued for. System
// administrators carry no tenant of their own, so the caller-declared tenant
// wins; every other role is pinned to the tenant on its user record.
func ResolveEffectiveTenantID(user *User, requestedTenantID string) string {
	requestedTenantID = strings.TrimSpace(requestedTenantID)
	if user == nil {
		return requestedTenantID
	}
	if user.Role == RoleSystemAdmin {
		return requestedTenantID
	}
	if tenantID := strings.TrimSpace(user.TenantID); tenantID != "" {
		return tenantID
	}
	return requestedTenantID
}

// DefaultBranding synthesizes a neutral look for tenants without a branding
// record, so login never hard-fails on a branding lookup miss.
func DefaultBranding(tenantID string) Branding {
	return Branding{
		LogoURL:        fmt.Sprintf("https://assets.aftervisit.org/tenants/%s/logo.png", tenantID),
		PrimaryColor:   "#2563eb",
		SecondaryColor: "#f8fafc",
	}
}

// FallbackTenantConfig builds a minimal configuration for a tenant the
// directory could not serve.
func FallbackTenantConfig(tenantID string) *TenantConfig {
	tenantID = strings.TrimSpace(tenantID)
	return &TenantConfig{
		ID:       tenantID,
		Name:     tenantID,
		Branding: DefaultBranding(tenantID),
	}
}
