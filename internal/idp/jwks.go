package idp

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// keyCache holds the provider's RSA signing keys, refetched after ttl or on
// a cache miss for an unknown key id (covers provider key rotation).
type keyCache struct {
	mu        sync.Mutex
	byKid     map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
}

func newKeyCache(ttl time.Duration) *keyCache {
	return &keyCache{
		byKid: make(map[string]*rsa.PublicKey),
		ttl:   ttl,
	}
}

func (k *keyCache) lookup(ctx context.Context, c *Client, kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	stale := c.now().Sub(k.fetchedAt) > k.ttl
	if key, ok := k.byKid[kid]; ok && !stale {
		return key, nil
	}

	keys, err := fetchJWKS(ctx, c.httpClient, c.jwksURL)
	if err != nil {
		// Serve a cached key through a fetch failure rather than failing
		// verification on a provider blip.
		if key, ok := k.byKid[kid]; ok {
			return key, nil
		}
		return nil, err
	}
	k.byKid = keys
	k.fetchedAt = c.now()

	key, ok := k.byKid[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %s not in provider key set", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func fetchJWKS(ctx context.Context, hc *http.Client, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		key, err := parseRSAKey(jwk.N, jwk.E)
		if err != nil {
			return nil, fmt.Errorf("parse jwks key %s: %w", jwk.Kid, err)
		}
		keys[jwk.Kid] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks document contains no usable keys")
	}
	return keys, nil
}

func parseRSAKey(modulus, exponent string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("non-positive exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
