package jwtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeySetAddAndGet(t *testing.T) {
	ks := NewKeySet()
	require.NoError(t, ks.AddSigner(rsaSigner(t, "r1")))
	require.NoError(t, ks.AddSigner(ecSigner(t, "e1")))
	require.NoError(t, ks.AddSigner(edSigner(t, "o1")))
	require.Equal(t, 3, ks.Len())

	for _, kid := range []string{"r1", "e1", "o1"} {
		k, err := ks.Get(kid)
		require.NoError(t, err)
		require.NotNil(t, k)
	}

	_, err := ks.Get("missing")
	require.ErrorIs(t, err, ErrNoKey)
}

func TestResetFromJWKSSkipsUnusableKeys(t *testing.T) {
	sig := rsaSigner(t, "good")
	enc := sig.PublicJWK()
	enc.Kid = "enc"
	enc.Use = "enc"

	ks := NewKeySet()
	err := ks.ResetFromJWKS(JWKS{Keys: []JWK{
		sig.PublicJWK(),
		enc,
		{Kty: "oct", Kid: "sym"},
		{Kty: "EC", Crv: "P-384", Kid: "p384"},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, ks.Len())

	_, err = ks.Get("enc")
	require.ErrorIs(t, err, ErrNoKey)
}

func TestResetFromJWKSRejectsEmpty(t *testing.T) {
	ks := NewKeySet()
	require.NoError(t, ks.AddSigner(edSigner(t, "keep")))

	err := ks.ResetFromJWKS(JWKS{Keys: []JWK{{Kty: "oct", Kid: "sym"}}})
	require.ErrorIs(t, err, ErrNoUsableKeys)
	require.Equal(t, 1, ks.Len(), "failed reset must not clear existing keys")
}
