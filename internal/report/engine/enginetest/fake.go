// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/printq/internal/report/engine"
)

// PDF is what a fake page prints unless Engine.Output is set.
var PDF = []byte("%PDF-1.7\n%fake\n")

// Call records one page session.
type Call struct {
	Media    string
	Patterns []string
	URL      string
	Scripts  []string
	Expr     string
	Arg      any
	Options  engine.PrintOptions
	Closed   bool
}

// Engine is a fake engine.Engine. Set the hook fields before use.
type Engine struct {
	// Output overrides PDF.
	Output []byte

	// PrintErr, if set, is returned by PrintToPDF.
	PrintErr error

	// OnPrint runs inside PrintToPDF; tests use it to block or count.
	OnPrint func(ctx context.Context) error

	mu     sync.Mutex
	calls  []*Call
	open   atomic.Int64
	closed atomic.Bool
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) NewPage(context.Context) (engine.Page, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	c := &Call{}
	e.mu.Lock()
	e.calls = append(e.calls, c)
	e.mu.Unlock()
	e.open.Add(1)
	return &page{e: e, c: c}, nil
}

func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Calls returns a snapshot of every page session so far.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	for i, c := range e.calls {
		out[i] = *c
	}
	return out
}

// OpenPages reports pages created but not yet closed.
func (e *Engine) OpenPages() int { return int(e.open.Load()) }

type page struct {
	e *Engine
	c *Call
}

func (p *page) record(fn func(c *Call)) {
	p.e.mu.Lock()
	defer p.e.mu.Unlock()
	fn(p.c)
}

func (p *page) EmulateMedia(_ context.Context, media string) error {
	p.record(func(c *Call) { c.Media = media })
	return nil
}

func (p *page) Intercept(_ context.Context, patterns []string, _ engine.RequestHook) error {
	p.record(func(c *Call) { c.Patterns = append(c.Patterns, patterns...) })
	return nil
}

func (p *page) Navigate(_ context.Context, url string) error {
	p.record(func(c *Call) { c.URL = url })
	return nil
}

func (p *page) AddScript(_ context.Context, source string) error {
	p.record(func(c *Call) { c.Scripts = append(c.Scripts, source) })
	return nil
}

func (p *page) Evaluate(_ context.Context, expr string, arg any) error {
	p.record(func(c *Call) { c.Expr, c.Arg = expr, arg })
	return nil
}

func (p *page) PrintToPDF(ctx context.Context, opts engine.PrintOptions) ([]byte, error) {
	p.record(func(c *Call) { c.Options = opts })
	if p.e.OnPrint != nil {
		if err := p.e.OnPrint(ctx); err != nil {
			return nil, err
		}
	}
	if p.e.PrintErr != nil {
		return nil, p.e.PrintErr
	}
	if p.e.Output != nil {
		return p.e.Output, nil
	}
	return PDF, nil
}

func (p *page) Close() error {
	p.record(func(c *Call) {
		if !c.Closed {
			c.Closed = true
			p.e.open.Add(-1)
		}
	})
	return nil
}
