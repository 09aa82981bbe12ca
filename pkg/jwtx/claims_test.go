package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScopesUnion(t *testing.T) {
	c := Claims{Scope: "read:product write:product", Scp: "write:product generate:pdf"}
	require.Equal(t, []string{"read:product", "write:product", "generate:pdf"}, c.Scopes())
	require.True(t, c.HasScope("generate:pdf"))
	require.False(t, c.HasScope("admin"))
}

func TestHasRole(t *testing.T) {
	c := Claims{Roles: []string{"Pdf.Generate"}}
	require.True(t, c.HasRole("Pdf.Generate"))
	require.False(t, c.HasRole("pdf.generate"))
}

func TestNewClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewClaims("svc", "https://issuer/", []string{"api"}, time.Minute, now)

	require.Equal(t, "svc", c.Subject)
	require.Equal(t, "https://issuer/", c.Issuer)
	require.Equal(t, now.Add(time.Minute), c.Expiry())
	require.NotEmpty(t, c.ID)
	require.Zero(t, (&Claims{}).Expiry())
}
