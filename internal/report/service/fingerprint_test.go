package service_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/service"
)

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestFingerprintMatchesReferenceFormat(t *testing.T) {
	params, err := service.DecodeParams([]byte(`{"x":1}`))
	require.NoError(t, err)

	id, err := service.Fingerprint("t1", params)
	require.NoError(t, err)
	require.Equal(t, sha(`t1|{"x":1}`), id)
	require.True(t, service.IsFingerprint(id))
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a, err := service.DecodeParams([]byte(`{"b":{"z":1,"y":[1,2]},"a":"x"}`))
	require.NoError(t, err)
	b, err := service.DecodeParams([]byte(` { "a" : "x", "b": {"y":[1, 2], "z":1} } `))
	require.NoError(t, err)

	fa, err := service.Fingerprint("t", a)
	require.NoError(t, err)
	fb, err := service.Fingerprint("t", b)
	require.NoError(t, err)
	require.Equal(t, fa, fb)
	require.Equal(t, sha(`t|{"a":"x","b":{"y":[1,2],"z":1}}`), fa)
}

func TestFingerprintKeepsNumbersAndText(t *testing.T) {
	params, err := service.DecodeParams([]byte(`{"n":1.50,"big":12345678901234567890,"s":"<ü>"}`))
	require.NoError(t, err)

	id, err := service.Fingerprint("t", params)
	require.NoError(t, err)
	require.Equal(t, sha(`t|{"big":12345678901234567890,"n":1.50,"s":"<ü>"}`), id)
}

func TestFingerprintDiffersByTemplate(t *testing.T) {
	a, err := service.Fingerprint("a", map[string]any{})
	require.NoError(t, err)
	b, err := service.Fingerprint("b", nil)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, sha("b|{}"), b)
}

func TestDecodeParamsRejectsNonObjects(t *testing.T) {
	for _, body := range []string{"", "[]", `"s"`, "1", "null", "{"} {
		_, err := service.DecodeParams([]byte(body))
		require.ErrorIs(t, err, domain.ErrValidation, body)
	}
}

func TestIsFingerprint(t *testing.T) {
	require.False(t, service.IsFingerprint(""))
	require.False(t, service.IsFingerprint("../../etc/passwd"))
	require.False(t, service.IsFingerprint(sha("x")[:63]+"G"))
}
