package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/engine"
)

// Manifest is the optional {name}.yaml next to a template:
//
//	plugin: crm-trade-invoice
//	print:
//	  format: A4
//	  landscape: true
//	  margin: {top: 15mm, bottom: 15mm}
//	header: '<div style="font-size:8px">{{.title}}</div>'
//	footer: '<div><span class="pageNumber"></span></div>'
//	auth:
//	  routes: ["https://*.blob.core.windows.net/*"]
//	  oauth2:
//	    token_url: https://login.example.com/oauth2/token
//	    client_id: printq
//	    client_secret_env: BLOB_CLIENT_SECRET
//	    scopes: ["https://storage.azure.com/.default"]
type Manifest struct {
	// Plugin names the registered data plugin. Empty means the plugin
	// registered under the template name, if any.
	Plugin string `yaml:"plugin"`

	Print  engine.PrintOptions `yaml:"print"`
	Header string              `yaml:"header"`
	Footer string              `yaml:"footer"`
	Auth   *AuthConfig         `yaml:"auth"`
}

// AuthConfig attaches a bearer token to requests matching Routes.
type AuthConfig struct {
	Routes    []string      `yaml:"routes"`
	OAuth2    *OAuth2Config `yaml:"oauth2"`
	BearerEnv string        `yaml:"bearer_env"`
}

// OAuth2Config is a client-credentials grant. The secret is read from the
// named environment variable, never from the manifest.
type OAuth2Config struct {
	TokenURL        string   `yaml:"token_url"`
	ClientID        string   `yaml:"client_id"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	Scopes          []string `yaml:"scopes"`
}

// ParseManifest decodes a manifest, rejecting unknown fields.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("%w: manifest: %w", domain.ErrConfig, err)
	}
	if err := m.Auth.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (a *AuthConfig) validate() error {
	if a == nil {
		return nil
	}
	if len(a.Routes) == 0 {
		return fmt.Errorf("%w: manifest auth: no routes", domain.ErrConfig)
	}
	if (a.OAuth2 == nil) == (a.BearerEnv == "") {
		return fmt.Errorf("%w: manifest auth: set exactly one of oauth2 or bearer_env", domain.ErrConfig)
	}
	if o := a.OAuth2; o != nil && (o.TokenURL == "" || o.ClientID == "" || o.ClientSecretEnv == "") {
		return fmt.Errorf("%w: manifest auth: oauth2 needs token_url, client_id and client_secret_env", domain.ErrConfig)
	}
	return nil
}

// tokenSource builds the credential source the hook draws from.
func (a *AuthConfig) tokenSource() (oauth2.TokenSource, error) {
	if a.BearerEnv != "" {
		tok := os.Getenv(a.BearerEnv)
		if tok == "" {
			return nil, fmt.Errorf("%w: manifest auth: %s is not set", domain.ErrConfig, a.BearerEnv)
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}), nil
	}

	secret := os.Getenv(a.OAuth2.ClientSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("%w: manifest auth: %s is not set", domain.ErrConfig, a.OAuth2.ClientSecretEnv)
	}
	cc := clientcredentials.Config{
		ClientID:     a.OAuth2.ClientID,
		ClientSecret: secret,
		TokenURL:     a.OAuth2.TokenURL,
		Scopes:       a.OAuth2.Scopes,
	}
	// Token refreshes outlive any single render.
	return cc.TokenSource(context.Background()), nil
}

// BearerHook returns a hook that adds the source's token to each request.
func BearerHook(ts oauth2.TokenSource) engine.RequestHook {
	return func(context.Context, string) (map[string]string, error) {
		tok, err := ts.Token()
		if err != nil {
			return nil, fmt.Errorf("templates: fetch token: %w", err)
		}
		return map[string]string{"Authorization": tok.Type() + " " + tok.AccessToken}, nil
	}
}
