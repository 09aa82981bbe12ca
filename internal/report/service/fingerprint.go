package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/aussiebroadwan/printq/internal/report/domain"
)

// canonicalJSON sorts keys at every level and keeps numbers exactly as they
// were written, so logically equal bodies serialize identically.
var canonicalJSON = jsoniter.Config{
	SortMapKeys: true,
	EscapeHTML:  false,
	UseNumber:   true,
}.Froze()

// Fingerprint is the job id for a template and its parameters:
// sha256_hex(template + "|" + canonical_json(params)).
func Fingerprint(template string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := canonicalJSON.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%w: encode params: %w", domain.ErrValidation, err)
	}

	h := sha256.New()
	h.Write([]byte(template))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeParams parses a request body, which must be a JSON object.
func DecodeParams(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: body must be a JSON object", domain.ErrValidation)
	}

	var params map[string]any
	if err := canonicalJSON.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("%w: body: %w", domain.ErrValidation, err)
	}
	return params, nil
}

// IsFingerprint reports whether s looks like a Fingerprint result.
func IsFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
