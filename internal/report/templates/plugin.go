package templates

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/printq/internal/report/engine"
)

// Factory builds a data plugin for one run from the request parameters and
// the shared data handle. db is nil when no data source is configured.
type Factory func(params map[string]any, db *sql.DB) (DataPlugin, error)

// DataPlugin gathers the data a template renders. Fetch may block on I/O;
// callers run it through a bounded executor.
type DataPlugin interface {
	Fetch(ctx context.Context) (map[string]any, error)
}

// HeaderFooter is implemented by plugins that generate the PDF header and
// footer markup.
type HeaderFooter interface {
	HeaderFooter(ctx context.Context) (header, footer string, err error)
}

// PrintOptioner is implemented by plugins that override print options.
type PrintOptioner interface {
	PrintOptions() engine.PrintOptions
}

// Authenticator is implemented by plugins that attach credentials to the
// page's outbound requests before it loads.
type Authenticator interface {
	Authenticate(ctx context.Context, page engine.Page) error
}
