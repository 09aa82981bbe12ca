package cryptox

import (
	"crypto/rand"
	"fmt"
)

// RandomSecret returns size raw random bytes. Used when no link secret is
// configured, which makes issued links valid only for this process.
func RandomSecret(size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return buf, nil
}
