package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

const (
	// MaxFailedAttempts is the counter value at which an account locks.
	MaxFailedAttempts = 3

	// LockReasonTooManyFailures is recorded on the user record when the
	// lock trips.
	LockReasonTooManyFailures = "exceeded maximum failed login attempts"
)

// LoginResult is the successful login payload.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	ExpiresIn int64
	User      *User
	Tenant    *TenantConfig
}

// Authenticator runs the login state machine: lookup, active check, lock
// check, password check, counter bookkeeping, tenant verification, issuance.
type Authenticator struct {
	users     CredentialStore
	tenants   TenantDirectory
	tokens    *TokenService
	logger    *log.Logger
	onLockout func(ctx context.Context, user *User, attempts int)
}

// AuthenticatorOption configures Authenticator behavior.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorLogger overrides the anomaly logger.
func WithAuthenticatorLogger(logger *log.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLockoutHook registers a callback invoked once when a failed attempt
// trips the lock. The hook runs on the login path; keep it fast.
func WithLockoutHook(hook func(ctx context.Context, user *User, attempts int)) AuthenticatorOption {
	return func(a *Authenticator) {
		a.onLockout = hook
	}
}

// NewAuthenticator wires the state machine to its collaborators.
func NewAuthenticator(users CredentialStore, tenants TenantDirectory, tokens *TokenService, opts ...AuthenticatorOption) (*Authenticator, error) {
	if users == nil {
		return nil, errors.New("credential store is required")
	}
	if tenants == nil {
		return nil, errors.New("tenant directory is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	a := &Authenticator{
		users:   users,
		tenants: tenants,
		tokens:  tokens,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Login authenticates a tenant-scoped credential pair and issues a session
// token. Every attempt that reaches the password check mutates the user
// record's counters; "user not found" has no side effects. Counter updates
// are best-effort against the rejection already chosen: a persistence
// failure is logged as an anomaly but does not change the returned error.
func (a *Authenticator) Login(ctx context.Context, tenantID, username, password string) (*LoginResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	username = strings.TrimSpace(strings.ToLower(username))
	if tenantID == "" || username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := a.users.FindByTenantAndUsername(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Active {
		return nil, ErrAccountDisabled
	}
	if user.Locked {
		return nil, ErrAccountLocked
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		attempts, locked, uerr := a.users.RecordFailure(ctx, user.ID, MaxFailedAttempts, LockReasonTooManyFailures)
		if uerr != nil {
			a.logger.Printf("auth: record login failure for user %s: %v", user.ID, uerr)
			// The counter is unknown; reject with the generic error rather
			// than guessing at lock state.
			return nil, ErrInvalidCredentials
		}
		if locked {
			// The user was unlocked at read time, so this attempt tripped it.
			if a.onLockout != nil {
				a.onLockout(ctx, user, attempts)
			}
			return nil, ErrAccountLocked
		}
		_ = attempts // never revealed to the caller
		return nil, ErrInvalidCredentials
	}

	if err := a.users.RecordSuccess(ctx, user.ID); err != nil {
		a.logger.Printf("auth: reset login counters for user %s: %v", user.ID, err)
	}

	tenant, err := a.lookupTenant(ctx, user, tenantID)
	if err != nil {
		return nil, err
	}

	effectiveTenantID := ResolveEffectiveTenantID(user, tenantID)
	token, expiresAt, err := a.tokens.Issue(Claims{
		UserID:          user.ID,
		TenantID:        effectiveTenantID,
		Username:        user.Username,
		Name:            user.Name,
		Role:            user.Role,
		LinkedPatientID: user.LinkedPatientID,
	})
	if err != nil {
		return nil, err
	}

	if tenant == nil {
		tenant = FallbackTenantConfig(effectiveTenantID)
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(TokenTTL / time.Second),
		User:      user,
		Tenant:    tenant,
	}, nil
}

// lookupTenant verifies tenant existence for non-system-admin roles and
// fetches branding. A missing directory record fails the login; a directory
// error only downgrades to synthesized branding.
func (a *Authenticator) lookupTenant(ctx context.Context, user *User, tenantID string) (*TenantConfig, error) {
	cfg, err := a.tenants.GetTenantConfig(ctx, tenantID)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, ErrNotFound):
		if user.Role == RoleSystemAdmin {
			// System administrators skip tenant verification entirely.
			return nil, nil
		}
		return nil, ErrTenantNotFound
	default:
		a.logger.Printf("auth: tenant config lookup for %s: %v", tenantID, err)
		return nil, nil
	}
}
