package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/deskbook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

var errNoUsableKeys = errors.New("JWKS contains no usable keys")

const (
	defaultFetchAttempts   = 3
	defaultRefreshInterval = time.Minute
)

// KeyResolver looks up a signing key by key id.
type KeyResolver interface {
	Resolve(kid string) (crypto.PublicKey, bool)
}

// KeyRingOption configures a KeyRing.
type KeyRingOption func(*KeyRing)

// WithFetchAttempts sets how many times a single refresh retries the JWKS fetch.
func WithFetchAttempts(n uint) KeyRingOption {
	return func(k *KeyRing) {
		if n > 0 {
			k.attempts = n
		}
	}
}

// WithRefreshLimit sets how often RequestRefresh may trigger an out of band fetch.
func WithRefreshLimit(every time.Duration) KeyRingOption {
	return func(k *KeyRing) {
		k.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
}

// keySet is an immutable snapshot of the published keys.
type keySet map[string]crypto.PublicKey

// KeyRing caches the identity provider's JWKS. Readers always see a complete
// snapshot; a refresh builds a new one and swaps it in.
type KeyRing struct {
	jwksURL    string
	httpClient *http.Client
	attempts   uint
	limiter    *rate.Limiter
	metrics    *telemetry.Metrics

	keys atomic.Pointer[keySet]

	refreshCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewKeyRing creates a key ring and performs the initial fetch. A failed
// initial fetch is logged and leaves the ring empty so every verification
// fails closed until a later refresh succeeds.
func NewKeyRing(ctx context.Context, jwksURL string, httpClient *http.Client, opts ...KeyRingOption) *KeyRing {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	k := &KeyRing{
		jwksURL:    jwksURL,
		httpClient: httpClient,
		attempts:   defaultFetchAttempts,
		limiter:    rate.NewLimiter(rate.Every(30*time.Second), 1),
		metrics:    telemetry.GetMetrics(),
		refreshCh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.keys.Store(&keySet{})

	if err := k.Refresh(ctx); err != nil {
		log.Error().Err(err).Str("jwks_url", jwksURL).Msg("Initial key ring refresh failed")
	}

	return k
}

// Resolve returns the key published under kid.
func (k *KeyRing) Resolve(kid string) (crypto.PublicKey, bool) {
	set := *k.keys.Load()
	key, ok := set[kid]
	return key, ok
}

// Len returns the number of keys in the current snapshot.
func (k *KeyRing) Len() int {
	return len(*k.keys.Load())
}

// Refresh fetches the key set, bypassing any cached copy held by the HTTP
// client, and swaps it in. On failure the previous snapshot is kept.
func (k *KeyRing) Refresh(ctx context.Context) error {
	return k.refresh(ctx, true)
}

// refresh fetches and swaps in the key set. Scheduled refreshes pass
// revalidate=false so a caching client may answer while the provider's
// max-age is fresh.
func (k *KeyRing) refresh(ctx context.Context, revalidate bool) error {
	log.Debug().Str("jwks_url", k.jwksURL).Bool("revalidate", revalidate).Msg("Refreshing key ring")

	set, err := backoff.Retry(ctx, func() (keySet, error) {
		return k.fetch(ctx, revalidate)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(k.attempts),
	)
	if err != nil {
		k.metrics.KeyRingRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return fmt.Errorf("failed to refresh key ring: %w", err)
	}

	previous := k.keys.Swap(&set)
	k.metrics.KeyRingRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	k.metrics.KeyRingKeys.Add(ctx, int64(len(set)-len(*previous)))

	log.Info().Int("total_keys", len(set)).Msg("Refreshed key ring")
	return nil
}

func (k *KeyRing) fetch(ctx context.Context, revalidate bool) (keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.jwksURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create JWKS request: %w", err))
	}
	if revalidate {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode JWKS: %w", err))
	}

	set := make(keySet, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		kid, ok := jwk["kid"].(string)
		if !ok || kid == "" {
			log.Warn().Msg("JWK missing kid")
			continue
		}

		key, err := parseJWK(jwk)
		if err != nil {
			log.Warn().Err(err).Str("kid", kid).Msg("Failed to parse JWK")
			continue
		}

		set[kid] = key
	}

	if len(set) == 0 {
		return nil, backoff.Permanent(errNoUsableKeys)
	}

	return set, nil
}

// Start runs a background refresh every interval until Stop is called or ctx
// is cancelled.
func (k *KeyRing) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	k.ctx, k.cancel = context.WithCancel(ctx)

	k.wg.Add(1)
	go k.refreshLoop(interval)
}

// Stop terminates the refresh loop started by Start.
func (k *KeyRing) Stop() {
	if k.cancel == nil {
		return
	}
	k.cancel()
	k.wg.Wait()
}

// RequestRefresh asks the refresh loop for an out of band fetch. Requests
// beyond the rate limit, or made while one is already pending, are dropped.
func (k *KeyRing) RequestRefresh() {
	if !k.limiter.Allow() {
		return
	}
	select {
	case k.refreshCh <- struct{}{}:
	default:
	}
}

func (k *KeyRing) refreshLoop(interval time.Duration) {
	defer k.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			log.Info().Msg("Key ring refresh stopped")
			return

		case <-ticker.C:
			if err := k.refresh(k.ctx, false); err != nil {
				log.Warn().Err(err).Msg("Key ring refresh failed, keeping cached keys")
			}

		case <-k.refreshCh:
			if err := k.Refresh(k.ctx); err != nil {
				log.Warn().Err(err).Msg("Requested key ring refresh failed, keeping cached keys")
			}
		}
	}
}

// parseJWK converts a JWK into an RSA or ECDSA public key.
func parseJWK(jwk map[string]any) (crypto.PublicKey, error) {
	kty, _ := jwk["kty"].(string)
	switch kty {
	case "RSA":
		return parseRSAJWK(jwk)
	case "EC":
		return parseECJWK(jwk)
	default:
		return nil, fmt.Errorf("unsupported key type: %v", jwk["kty"])
	}
}

func parseRSAJWK(jwk map[string]any) (*rsa.PublicKey, error) {
	nBytes, err := jwkBytes(jwk, "n")
	if err != nil {
		return nil, err
	}
	eBytes, err := jwkBytes(jwk, "e")
	if err != nil {
		return nil, err
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("invalid RSA exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

func parseECJWK(jwk map[string]any) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv, _ := jwk["crv"].(string); crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	default:
		return nil, fmt.Errorf("unsupported curve: %v", jwk["crv"])
	}

	xBytes, err := jwkBytes(jwk, "x")
	if err != nil {
		return nil, err
	}
	yBytes, err := jwkBytes(jwk, "y")
	if err != nil {
		return nil, err
	}

	x := new(big.Int).SetBytes(xBytes)
	y := new(big.Int).SetBytes(yBytes)
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("point is not on curve %s", curve.Params().Name)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     x,
		Y:     y,
	}, nil
}

func jwkBytes(jwk map[string]any, name string) ([]byte, error) {
	s, ok := jwk[name].(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("missing %s", name)
	}
	b, err := decodeBase64URL(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return b, nil
}

// decodeBase64URL decodes a base64url-encoded string with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
