// Package idp talks to the external identity provider used for
// service-to-service authentication: its token-info endpoint for remote
// verification and its JWKS document for local RS256 verification.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aftervisit.org/internal/auth"
)

const (
	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	defaultJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"

	// defaultTimeout bounds every outbound call; a timeout is a
	// verification failure, never a fatal error.
	defaultTimeout = 5 * time.Second

	defaultKeyTTL = time.Hour
)

// Client is the HTTP client for the identity provider. It satisfies
// auth.IdentityProvider.
type Client struct {
	httpClient   *http.Client
	tokenInfoURL string
	jwksURL      string
	keys         *keyCache
	now          func() time.Time
}

var _ auth.IdentityProvider = (*Client)(nil)

// Option configures Client behavior.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithEndpoints overrides the provider endpoints (useful for tests).
func WithEndpoints(tokenInfoURL, jwksURL string) Option {
	return func(c *Client) {
		if tokenInfoURL != "" {
			c.tokenInfoURL = tokenInfoURL
		}
		if jwksURL != "" {
			c.jwksURL = jwksURL
		}
	}
}

// WithKeyTTL overrides how long fetched signing keys are cached.
func WithKeyTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.keys.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewClient constructs a provider client with sane timeouts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		tokenInfoURL: defaultTokenInfoURL,
		jwksURL:      defaultJWKSURL,
		keys:         newKeyCache(defaultKeyTTL),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenInfoResponse mirrors the provider's token-info payload. The endpoint
// returns booleans as strings.
type tokenInfoResponse struct {
	Issuer        string `json:"iss"`
	Audience      string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Expires       string `json:"exp"`
}

// TokenInfo verifies a token remotely via the provider's token-info
// endpoint.
func (c *Client) TokenInfo(ctx context.Context, rawToken string) (*auth.ProviderClaims, error) {
	endpoint := c.tokenInfoURL + "?id_token=" + url.QueryEscape(rawToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tokeninfo request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read tokeninfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokeninfo rejected token: status %d", resp.StatusCode)
	}

	var info tokenInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo response: %w", err)
	}

	claims := &auth.ProviderClaims{
		Issuer:        info.Issuer,
		Audience:      info.Audience,
		Email:         strings.TrimSpace(info.Email),
		EmailVerified: info.EmailVerified == "true",
	}
	if exp, err := strconv.ParseInt(info.Expires, 10, 64); err == nil {
		claims.ExpiresAt = time.Unix(exp, 0)
		if c.now().After(claims.ExpiresAt) {
			return nil, fmt.Errorf("tokeninfo reports expired token")
		}
	}
	return claims, nil
}

// idTokenClaims is the claim shape expected on provider-issued ID tokens.
type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// VerifyIDToken verifies a token locally against the provider's published
// signing keys. An empty audience skips audience enforcement; callers use
// that for service tokens whose audience is not known in advance.
func (c *Client) VerifyIDToken(ctx context.Context, rawToken, audience string) (*auth.ProviderClaims, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no key id")
		}
		return c.keys.lookup(ctx, c, kid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	parsed, err := jwt.ParseWithClaims(rawToken, &idTokenClaims{}, keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	claims, ok := parsed.Claims.(*idTokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("verify id token: unexpected claim shape")
	}

	out := &auth.ProviderClaims{
		Issuer:        claims.Issuer,
		Email:         strings.TrimSpace(claims.Email),
		EmailVerified: claims.EmailVerified,
	}
	if len(claims.Audience) > 0 {
		out.Audience = claims.Audience[0]
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
