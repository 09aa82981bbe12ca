package jwtx

import (
	"fmt"
	"net/http"

	"github.com/zitadel/oidc/v2/pkg/client"
)

// ResolveIssuers fills in JWKSURL for issuers that only name themselves,
// using OpenID Connect discovery against {issuer}/.well-known/openid-configuration.
func ResolveIssuers(httpClient *http.Client, issuers []Issuer) ([]Issuer, error) {
	out := make([]Issuer, 0, len(issuers))
	for _, iss := range issuers {
		if iss.JWKSURL == "" {
			cfg, err := client.Discover(iss.Issuer, httpClient)
			if err != nil {
				return nil, fmt.Errorf("jwtx: discover %s: %w", iss.Issuer, err)
			}
			if cfg.JwksURI == "" {
				return nil, fmt.Errorf("jwtx: discover %s: no jwks_uri advertised", iss.Issuer)
			}
			iss.JWKSURL = cfg.JwksURI
		}
		out = append(out, iss)
	}
	return out, nil
}
