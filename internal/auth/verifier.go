package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned for a missing token or one that cannot be decoded.
	ErrMalformed = errors.New("malformed token")
	// ErrUnknownKey is returned when the token's key id is not in the key ring.
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrExpired is returned when the token's expiry is not in the future.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("bad token signature")
)

var (
	rsaMethods   = []string{"RS256", "RS384", "RS512"}
	ecdsaMethods = []string{"ES256", "ES384", "ES512"}
)

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithClock replaces the clock used for the expiry check.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		v.now = now
	}
}

// TokenVerifier validates bearer tokens against a key ring. Verification has
// no side effects: the same token, key ring snapshot and clock always give
// the same result.
type TokenVerifier struct {
	keys KeyResolver
	now  func() time.Time
}

// NewTokenVerifier creates a verifier resolving signing keys through keys.
func NewTokenVerifier(keys KeyResolver, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		keys: keys,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks, in order, structure, key id, expiry and signature, and
// returns the identity carried by the token.
func (v *TokenVerifier) Verify(raw string) (*Identity, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: token not provided", ErrMalformed)
	}

	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// a token without a kid cannot name a key in the ring
	kid, _ := token.Header["kid"].(string)
	key, ok := v.keys.Resolve(kid)
	if kid == "" || !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	if !exp.After(v.now()) {
		return nil, fmt.Errorf("%w: at %s", ErrExpired, exp.UTC().Format(time.RFC3339))
	}

	methods, err := methodsFor(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	parser := jwt.NewParser(jwt.WithValidMethods(methods), jwt.WithoutClaimsValidation())
	_, err = parser.ParseWithClaims(raw, jwt.MapClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	return identityFromClaims(claims)
}

// methodsFor returns the signing algorithms a key of this type may verify.
func methodsFor(key crypto.PublicKey) ([]string, error) {
	switch key.(type) {
	case *rsa.PublicKey:
		return rsaMethods, nil
	case *ecdsa.PublicKey:
		return ecdsaMethods, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
}
