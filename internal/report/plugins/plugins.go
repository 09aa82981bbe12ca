// Package plugins registers the bundled data plugins.
package plugins

import (
	"net/http"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/printq/internal/report/plugins/productreport"
	"github.com/aussiebroadwan/printq/internal/report/plugins/tradeinvoice"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

// Config is shared by every bundled plugin.
type Config struct {
	// Placeholder matches the data driver: sq.Dollar for pgx, sq.Question
	// for sqlite.
	Placeholder sq.PlaceholderFormat

	// BlobToken authorizes blob downloads and page requests to blob
	// storage. Nil means anonymous access.
	BlobToken oauth2.TokenSource

	HTTPClient *http.Client
	Now        func() time.Time
}

// Register adds every bundled plugin to reg.
func Register(reg *templates.Registry, cfg Config) error {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	if err := reg.Register(tradeinvoice.Name, tradeinvoice.Factory(tradeinvoice.Config{
		Placeholder: cfg.Placeholder,
		BlobToken:   cfg.BlobToken,
		HTTPClient:  cfg.HTTPClient,
		Now:         cfg.Now,
	})); err != nil {
		return err
	}
	return reg.Register(productreport.Name, productreport.Factory(productreport.Config{
		Placeholder: cfg.Placeholder,
		Now:         cfg.Now,
	}))
}
