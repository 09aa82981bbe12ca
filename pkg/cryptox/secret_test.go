package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomSecret(t *testing.T) {
	a, err := RandomSecret(32)
	require.NoError(t, err)
	b, err := RandomSecret(32)
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}
