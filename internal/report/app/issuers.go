package app

import (
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/printq/pkg/jwtx"
)

// issuersFile is the AUTH_ISSUERS_FILE layout.
type issuersFile struct {
	Issuers []jwtx.Issuer `yaml:"issuers"`
}

// builtinIssuers returns the Auth0 and Azure AD issuers enabled by the
// environment, in that order.
func builtinIssuers(cfg EdgeConfig) []jwtx.Issuer {
	var out []jwtx.Issuer
	if cfg.Auth0Domain != "" {
		out = append(out, jwtx.Issuer{
			Issuer:   "https://" + cfg.Auth0Domain + "/",
			Audience: cfg.Auth0Audience,
			JWKSURL:  "https://" + cfg.Auth0Domain + "/.well-known/jwks.json",
		})
	}
	if cfg.AzureTenantID != "" {
		out = append(out, jwtx.Issuer{
			Issuer:   "https://sts.windows.net/" + cfg.AzureTenantID + "/",
			Audience: cfg.AzureAudience,
			JWKSURL:  "https://login.microsoftonline.com/" + cfg.AzureTenantID + "/discovery/v2.0/keys",
		})
	}
	return out
}

func loadIssuersFile(path string) ([]jwtx.Issuer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issuers file: %w", err)
	}

	var f issuersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse issuers file %s: %w", path, err)
	}
	for i, iss := range f.Issuers {
		if iss.Issuer == "" {
			return nil, fmt.Errorf("issuers file %s: entry %d has no issuer", path, i)
		}
	}
	return f.Issuers, nil
}

// newVerifier builds the token verifier from the built-in issuers followed
// by the ones in AUTH_ISSUERS_FILE. Issuers without a JWKS URL are resolved
// through OIDC discovery here, so a bad issuer fails startup.
func newVerifier(cfg EdgeConfig) (*jwtx.MultiIssuerVerifier, error) {
	issuers := builtinIssuers(cfg)
	if cfg.IssuersFile != "" {
		extra, err := loadIssuersFile(cfg.IssuersFile)
		if err != nil {
			return nil, err
		}
		issuers = append(issuers, extra...)
	}
	if len(issuers) == 0 {
		return nil, fmt.Errorf("no token issuers configured")
	}

	client := &http.Client{Timeout: cfg.JWKSTimeout}
	resolved, err := jwtx.ResolveIssuers(client, issuers)
	if err != nil {
		return nil, err
	}

	cache := jwtx.NewJWKSCache(
		jwtx.WithHTTPClient(client),
		jwtx.WithTTL(cfg.JWKSTTL),
	)
	return jwtx.NewMultiIssuerVerifier(cache, cfg.TokenLeeway, resolved...), nil
}
