package jwtx

import (
	"context"
	"errors"
)

// Verifier validates a bearer token and enforces an optional requirement.
type Verifier interface {
	Verify(ctx context.Context, token string, req Requirement) (Claims, error)
}

// Requirement is an optional scope and role the token must carry. Empty
// fields are not enforced.
type Requirement struct {
	Scope string
	Role  string
}

// Issuer is one trusted token issuer.
type Issuer struct {
	// Issuer must equal the token's iss claim exactly.
	Issuer string `yaml:"issuer"`

	// Audience the token must contain. Empty means "don't care".
	Audience string `yaml:"audience"`

	// JWKSURL is where the issuer publishes its signing keys. When empty it
	// is resolved through OIDC discovery at startup.
	JWKSURL string `yaml:"jwks_url"`
}

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrMissingKID = errors.New("jwtx: missing kid")

	// ErrUntrusted means no configured issuer accepted the token.
	ErrUntrusted = errors.New("jwtx: no trusted issuer accepted the token")

	ErrMissingScope = errors.New("jwtx: missing scope")
	ErrMissingRole  = errors.New("jwtx: missing role")

	// ErrKeyFetch wraps failures retrieving an issuer's key set. Those are
	// not credential problems and are never masked by trying the next issuer.
	ErrKeyFetch = errors.New("jwtx: key set fetch failed")
)
