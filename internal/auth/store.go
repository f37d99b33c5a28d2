package auth

import "context"

// CredentialStore is the persistence contract the authenticator needs. The
// login counter mutations must be atomic against concurrent attempts for the
// same account: RecordFailure computes the new counter and lock state in a
// single conditional update and returns what it wrote.
type CredentialStore interface {
	// FindByTenantAndUsername resolves a user within a tenant. System
	// administrators carry no tenant and match regardless of the declared
	// tenant id. Returns ErrNotFound when no record matches.
	FindByTenantAndUsername(ctx context.Context, tenantID, username string) (*User, error)

	// Find resolves a user by id. Returns ErrNotFound when absent.
	Find(ctx context.Context, userID string) (*User, error)

	// RecordFailure increments the failed-attempt counter, stamps the
	// failure time, and locks the account with the given reason once the
	// counter reaches threshold. Returns the counter and lock flag as
	// written.
	RecordFailure(ctx context.Context, userID string, threshold int, lockReason string) (attempts int, locked bool, err error)

	// RecordSuccess resets the failed-attempt counter and stamps the last
	// successful login time.
	RecordSuccess(ctx context.Context, userID string) error

	// Unlock clears the lock and counter on behalf of the given actor.
	Unlock(ctx context.Context, userID, actor string) error
}

// TenantDirectory resolves tenant configuration. Returns ErrNotFound when the
// tenant has no record.
type TenantDirectory interface {
	GetTenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error)
}

// IdentityProvider verifies tokens issued by the external identity provider.
// An empty audience on VerifyIDToken skips audience enforcement.
type IdentityProvider interface {
	TokenInfo(ctx context.Context, rawToken string) (*ProviderClaims, error)
	VerifyIDToken(ctx context.Context, rawToken, audience string) (*ProviderClaims, error)
}
