package cognito

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrKeyNotFound is returned when no signing key matches the token's kid
	ErrKeyNotFound = errors.New("signing key not found")
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// CacheStats describes the state of the signing key cache
type CacheStats struct {
	Cached    bool      `json:"jwks_cached"`
	KeyCount  int       `json:"cached_keys_count"`
	FetchedAt time.Time `json:"jwks_fetched_at"`
	ExpiresAt time.Time `json:"jwks_expires_at"`
}

// keySet holds the user pool's RSA signing keys. Keys are only served while the
// set is fresh; an expired set that cannot be refreshed yields an error.
type keySet struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	timeout    time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	expiresAt time.Time

	group singleflight.Group
}

func newKeySet(url string, httpClient *http.Client, ttl, minRefresh, timeout time.Duration, now func() time.Time) *keySet {
	return &keySet{
		url:        url,
		httpClient: httpClient,
		ttl:        ttl,
		minRefresh: minRefresh,
		timeout:    timeout,
		now:        now,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// publicKey returns the key for kid, fetching the JWKS when the cache is
// empty or expired. An unknown kid triggers at most one refresh per
// minRefresh window to pick up rotated keys.
func (s *keySet) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := s.now()

	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := now.Before(s.expiresAt)
	fetchedAt := s.fetchedAt
	s.mu.RUnlock()

	if fresh {
		if ok {
			return key, nil
		}
		if now.Sub(fetchedAt) < s.minRefresh {
			return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
		}
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	key, ok = s.keys[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// refresh replaces the cached key set. Concurrent callers share one fetch,
// which runs detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done.
func (s *keySet) refresh(ctx context.Context) error {
	ch := s.group.DoChan(s.url, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		jwks, err := s.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
		for i := range jwks.Keys {
			jwk := &jwks.Keys[i]
			if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
				continue
			}
			publicKey, err := jwkToRSAPublicKey(jwk)
			if err != nil {
				continue
			}
			keys[jwk.Kid] = publicKey
		}

		now := s.now()
		s.mu.Lock()
		s.keys = keys
		s.fetchedAt = now
		s.expiresAt = now.Add(s.ttl)
		s.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, ctx.Err())
	}
}

func (s *keySet) fetch(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrJWKSFetchFailed, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	return &jwks, nil
}

func (s *keySet) stats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CacheStats{
		Cached:    !s.fetchedAt.IsZero(),
		KeyCount:  len(s.keys),
		FetchedAt: s.fetchedAt,
		ExpiresAt: s.expiresAt,
	}
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid RSA key parameters")
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
