package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var supportedAlgs = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

// MultiIssuerVerifier accepts tokens from any of several issuers, tried in
// the configured order. A token that fails against one issuer (unknown kid,
// bad signature, wrong iss or aud, expired) falls through to the next.
type MultiIssuerVerifier struct {
	issuers []Issuer
	cache   *JWKSCache
	leeway  time.Duration
}

// NewMultiIssuerVerifier builds a verifier over issuers. Every issuer must
// have a JWKSURL; use ResolveIssuers to fill missing ones first.
func NewMultiIssuerVerifier(cache *JWKSCache, leeway time.Duration, issuers ...Issuer) *MultiIssuerVerifier {
	return &MultiIssuerVerifier{
		issuers: issuers,
		cache:   cache,
		leeway:  leeway,
	}
}

// Issuers returns the configured issuers in priority order.
func (v *MultiIssuerVerifier) Issuers() []Issuer {
	return append([]Issuer(nil), v.issuers...)
}

// Verify implements Verifier. It returns ErrUntrusted when no issuer
// accepts the token, ErrMissingScope/ErrMissingRole when one does but the
// requirement is not met, and ErrKeyFetch when a key set cannot be loaded.
func (v *MultiIssuerVerifier) Verify(ctx context.Context, raw string, req Requirement) (Claims, error) {
	kid, err := headerKID(raw)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrUntrusted, err)
	}

	var lastErr error
	for _, iss := range v.issuers {
		keys, err := v.cache.Keys(ctx, iss.JWKSURL)
		if err != nil {
			return Claims{}, err
		}

		key, err := keys.Get(kid)
		if err != nil {
			lastErr = err
			continue
		}

		claims, err := v.parse(raw, key, iss)
		if err != nil {
			lastErr = err
			continue
		}

		if req.Scope != "" && !claims.HasScope(req.Scope) {
			return Claims{}, fmt.Errorf("%w %q", ErrMissingScope, req.Scope)
		}
		if req.Role != "" && !claims.HasRole(req.Role) {
			return Claims{}, fmt.Errorf("%w %q", ErrMissingRole, req.Role)
		}
		return *claims, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no issuers configured")
	}
	return Claims{}, fmt.Errorf("%w: %w", ErrUntrusted, lastErr)
}

func (v *MultiIssuerVerifier) parse(raw string, key any, iss Issuer) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(supportedAlgs),
		jwt.WithIssuer(iss.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if iss.Audience != "" {
		opts = append(opts, jwt.WithAudience(iss.Audience))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("jwtx: invalid token")
	}
	return claims, nil
}

// headerKID reads the kid from the unverified token header.
func headerKID(raw string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, &Claims{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return "", ErrMissingKID
	}
	return kid, nil
}
