package auth

import "errors"

var (
	// ErrInvalidCredentials covers both "no such user" and "wrong password"
	// so callers cannot enumerate usernames.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountDisabled is returned when the active flag is false.
	ErrAccountDisabled = errors.New("auth: account disabled")

	// ErrAccountLocked is returned for locked accounts, whether the lock
	// tripped on this attempt or earlier.
	ErrAccountLocked = errors.New("auth: account locked")

	// ErrTenantNotFound is returned when the declared tenant has no
	// directory record.
	ErrTenantNotFound = errors.New("auth: tenant not found")

	// ErrAuthenticationRequired means no valid token of either trust path
	// accompanied the request.
	ErrAuthenticationRequired = errors.New("auth: authentication required")

	// ErrForbidden means the caller authenticated but its role is not on
	// the operation's allow-list.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrMissingTenantHeader and ErrTenantAccessDenied are the two distinct
	// tenant-isolation failures.
	ErrMissingTenantHeader = errors.New("auth: missing tenant header")
	ErrTenantAccessDenied  = errors.New("auth: tenant access denied")

	// ErrInvalidToken indicates a session token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenVerificationFailed indicates a token that looked like a
	// delegated identity token failed verification.
	ErrTokenVerificationFailed = errors.New("auth: token verification failed")

	// ErrNotDelegatedToken marks a token that was never meant for the
	// delegated trust path. Callers fall back to it quietly.
	ErrNotDelegatedToken = errors.New("auth: not a delegated identity token")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
