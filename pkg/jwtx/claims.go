package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims the edge cares about. Identity
// providers disagree on where scopes live: Auth0 uses a space-delimited
// "scope", Azure AD uses "scp" for delegated tokens and "roles" for
// application permissions.
type Claims struct {
	jwt.RegisteredClaims

	Scope string   `json:"scope,omitempty"`
	Scp   string   `json:"scp,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// NewClaims builds minimally-correct claims, mostly for minting test tokens.
func NewClaims(subject, issuer string, audience []string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Scopes returns the union of "scope" and "scp".
func (c *Claims) Scopes() []string {
	out := strings.Fields(c.Scope)
	for _, s := range strings.Fields(c.Scp) {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes(), scope)
}

func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Expiry returns the exp claim or the zero time.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
