package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"
)

// SignatureLen is the number of hex characters kept from the HMAC.
const SignatureLen = 32

const linkKeyInfo = "printq link v1"

var (
	ErrLinkExpired = errors.New("cryptox: link expired")
	ErrLinkInvalid = errors.New("cryptox: link signature invalid")
)

// LinkSigner issues and checks short-lived links bound to an operation and
// a subject. Nothing is stored server side: a link verifies for anyone
// holding it until it expires.
type LinkSigner struct {
	key []byte
	now func() time.Time
}

// NewLinkSigner derives the signing key from secret with HKDF-SHA256.
func NewLinkSigner(secret []byte) (*LinkSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("cryptox: empty link secret")
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(linkKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("cryptox: derive link key: %w", err)
	}

	return &LinkSigner{key: key, now: time.Now}, nil
}

// WithClock returns a copy of s that reads time from now.
func (s *LinkSigner) WithClock(now func() time.Time) *LinkSigner {
	return &LinkSigner{key: s.key, now: now}
}

// Issue returns the signature for (op, subject) and the unix expiry.
func (s *LinkSigner) Issue(op, subject string, ttl time.Duration) (string, int64) {
	exp := s.now().Add(ttl).Unix()
	return s.sign(op, subject, exp), exp
}

// Verify checks expiry first and then the signature, so an expired link
// reports ErrLinkExpired even when it was also tampered with.
func (s *LinkSigner) Verify(op, subject string, exp int64, sig string) error {
	if s.now().Unix() > exp {
		return ErrLinkExpired
	}
	want := s.sign(op, subject, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrLinkInvalid
	}
	return nil
}

func (s *LinkSigner) sign(op, subject string, exp int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(op + "|" + subject + "|" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:SignatureLen]
}
