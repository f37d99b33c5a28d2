package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role classifies every account on the platform.
type Role string

const (
	RolePatient     Role = "patient"
	RoleClinician   Role = "clinician"
	RoleExpert      Role = "expert"
	RoleTenantAdmin Role = "tenant_admin"
	RoleSystemAdmin Role = "system_admin"
)

// HumanRoles lists every role a human account can carry.
var HumanRoles = []Role{RolePatient, RoleClinician, RoleExpert, RoleTenantAdmin, RoleSystemAdmin}

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleClinician, RoleExpert, RoleTenantAdmin, RoleSystemAdmin:
		return true
	}
	return false
}

// ParseRole normalizes and validates a raw role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// User is the credential record behind a platform account. TenantID is empty
// only for system administrators; for every other role it is set at creation
// and never changes.
type User struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id,omitempty"`
	Username        string     `json:"username"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Role            Role       `json:"role"`
	LinkedPatientID string     `json:"linked_patient_id,omitempty"`
	PasswordHash    string     `json:"-"`
	Active          bool       `json:"active"`
	Locked          bool       `json:"locked"`
	LockedAt        *time.Time `json:"locked_at,omitempty"`
	LockReason      string     `json:"lock_reason,omitempty"`
	FailedAttempts  int        `json:"failed_attempts"`
	LastFailedAt    *time.Time `json:"last_failed_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CreatedBy       string     `json:"created_by,omitempty"`
	UpdatedBy       string     `json:"updated_by,omitempty"`
}

// Branding carries the per-tenant look of the portals.
type Branding struct {
	LogoURL        string `json:"logo_url"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
}

// TenantConfig is the directory record for one tenant. Read-only from this
// package's perspective.
type TenantConfig struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Branding  Branding        `json:"branding"`
	Features  map[string]bool `json:"features,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DelegatedIdentity is the transient identity derived from a verified
// provider token. It grants service trust only and is never tied to a tenant
// or role.
type DelegatedIdentity struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// ProviderClaims is the verified claim set returned by an identity provider,
// regardless of which verification path produced it.
type ProviderClaims struct {
	Issuer        string
	Audience      string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
}
