// Package engine drives the browser that turns a rendered HTML document into
// a PDF.
package engine

import (
	"context"
	"errors"
)

// ErrClosed is returned by an engine after Close.
var ErrClosed = errors.New("engine: closed")

// Engine hands out isolated pages. Implementations must be safe for
// concurrent use; each render gets its own Page.
type Engine interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// RequestHook is consulted for every outbound request a page makes. It
// returns headers to add; nil leaves the request unchanged.
type RequestHook func(ctx context.Context, url string) (map[string]string, error)

// Page is one browser tab. Close releases it and must always be called.
type Page interface {
	// EmulateMedia sets the CSS media type, e.g. "screen" or "print".
	EmulateMedia(ctx context.Context, media string) error

	// Intercept routes requests whose URL matches one of patterns through
	// hook. Patterns use * as a wildcard.
	Intercept(ctx context.Context, patterns []string, hook RequestHook) error

	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// AddScript evaluates source in the page.
	AddScript(ctx context.Context, source string) error

	// Evaluate calls expr as a function with arg serialized as JSON and
	// awaits the result if it is a promise.
	Evaluate(ctx context.Context, expr string, arg any) error

	PrintToPDF(ctx context.Context, opts PrintOptions) ([]byte, error)

	Close() error
}
