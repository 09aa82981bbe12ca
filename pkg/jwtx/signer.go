package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints JWTs. The edge never signs tokens itself; signers exist so
// tests and local tooling can act as an identity provider.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSignerRS256 creates an RS256 signer from a PKCS1 or PKCS8 PEM key.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	key, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	rk, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an RSA private key")
	}
	return &keySigner{
		kid:    kid,
		method: jwt.SigningMethodRS256,
		key:    rk,
		jwk:    NewRSAJWK(kid, "sig", jwt.SigningMethodRS256.Alg(), &rk.PublicKey),
	}, nil
}

// NewSignerES256 creates an ES256 signer from a PKCS8 PEM key on P-256.
func NewSignerES256(kid string, pemKey []byte) (Signer, error) {
	key, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	ek, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an ECDSA private key")
	}
	if ek.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("jwtx: expected P-256 curve, got %s", ek.Curve.Params().Name)
	}
	return &keySigner{
		kid:    kid,
		method: jwt.SigningMethodES256,
		key:    ek,
		jwk:    NewES256JWK(kid, "sig", jwt.SigningMethodES256.Alg(), &ek.PublicKey),
	}, nil
}

// NewSignerEdDSA creates an EdDSA signer from a PKCS8 PEM Ed25519 key.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	key, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	ek, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an Ed25519 private key")
	}
	return &keySigner{
		kid:    kid,
		method: jwt.SigningMethodEdDSA,
		key:    ek,
		jwk:    NewEd25519JWK(kid, "sig", jwt.SigningMethodEdDSA.Alg(), ek.Public().(ed25519.PublicKey)),
	}, nil
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// parsePrivateKey accepts PKCS1 RSA and PKCS8 keys.
func parsePrivateKey(pemKey []byte) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS1: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}
}
