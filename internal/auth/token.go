package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "aftervisit"

	// TokenTTL is the fixed session lifetime. Tokens are never refreshed in
	// place; expiry forces a fresh login.
	TokenTTL = 24 * time.Hour

	// verifyLeeway absorbs clock drift between the issuing and verifying
	// hosts when checking exp/iat.
	verifyLeeway = 60 * time.Second
)

// fallbackSecret keeps local development working without configuration.
// NewTokenService reports it through UsingFallbackSecret so deployments can
// warn prominently; production must set a real secret.
const fallbackSecret = "aftervisit-insecure-dev-secret"

// TokenConfig is the signing configuration, passed explicitly so tests can
// run with distinct secrets.
type TokenConfig struct {
	Secret string
}

// Claims is the fixed-shape session claim set. Tokens whose decoded shape
// does not satisfy validate are rejected.
type Claims struct {
	UserID          string `json:"uid"`
	TenantID        string `json:"tenant_id,omitempty"`
	Username        string `json:"username"`
	Name            string `json:"name,omitempty"`
	Role            Role   `json:"role"`
	LinkedPatientID string `json:"patient_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies the platform's own session tokens.
type TokenService struct {
	secret   []byte
	fallback bool
	now      func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs the issuer/verifier from explicit configuration.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) *TokenService {
	secret := strings.TrimSpace(cfg.Secret)
	s := &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
	if secret == "" {
		s.secret = []byte(fallbackSecret)
		s.fallback = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UsingFallbackSecret reports whether the service runs on the built-in
// development secret. Deployments must treat true as a loud misconfiguration.
func (s *TokenService) UsingFallbackSecret() bool {
	return s.fallback
}

// Issue signs a session token for the given identity claims. Issued-at and
// expiry are stamped here and never caller-supplied; expiry is always
// issued-at plus TokenTTL.
func (s *TokenService) Issue(claims Claims) (string, time.Time, error) {
	claims.UserID = strings.TrimSpace(claims.UserID)
	claims.Username = strings.TrimSpace(claims.Username)
	if claims.UserID == "" || claims.Username == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id and username are required", ErrInvalidInput)
	}
	if !claims.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, claims.Role)
	}

	now := s.now().UTC()
	expiresAt := now.Add(TokenTTL)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and claim shape of a session token. Malformed
// encoding, signature mismatch, expiry, and shape violations all collapse to
// ErrInvalidToken; nothing past this boundary panics or leaks parser detail.
func (s *TokenService) Verify(rawToken string) (*Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithLeeway(verifyLeeway), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return fmt.Errorf("user id missing")
	}
	if strings.TrimSpace(claims.Username) == "" {
		return fmt.Errorf("username missing")
	}
	if !claims.Role.Valid() {
		return fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.Role != RoleSystemAdmin && strings.TrimSpace(claims.TenantID) == "" {
		return fmt.Errorf("tenant id missing for role %s", claims.Role)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return fmt.Errorf("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return fmt.Errorf("token expiry precedes issued-at")
	}
	return nil
}
