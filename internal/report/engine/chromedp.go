package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
)

// ChromeConfig configures the headless browser.
type ChromeConfig struct {
	// ExecPath is the browser binary; empty lets chromedp search for one.
	ExecPath string

	// NoSandbox is needed when running as root in a container.
	NoSandbox bool

	Logger *slog.Logger
}

// Chrome is an Engine backed by one long-lived headless Chrome. Each page is
// a separate tab.
type Chrome struct {
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ Engine = (*Chrome)(nil)

// NewChrome launches the browser. It is shut down by Close.
func NewChrome(ctx context.Context, cfg ChromeConfig) (*Chrome, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	// The browser outlives the caller's ctx; only Close stops it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Error(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
	)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("engine: start browser: %w", err)
	}

	return &Chrome{
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	p := &chromePage{ctx: tabCtx, cancel: cancel, logger: c.logger}
	if err := p.run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("engine: open tab: %w", err)
	}
	return p, nil
}

func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.browserCancel()
	c.allocCancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// run executes actions on the tab, aborting when ctx ends.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) EmulateMedia(ctx context.Context, media string) error {
	return p.run(ctx, emulation.SetEmulatedMedia().WithMedia(media))
}

func (p *chromePage) Intercept(ctx context.Context, patterns []string, hook RequestHook) error {
	if len(patterns) == 0 {
		return nil
	}

	reqPatterns := make([]*fetch.RequestPattern, 0, len(patterns))
	for _, pat := range patterns {
		reqPatterns = append(reqPatterns, &fetch.RequestPattern{
			URLPattern:   pat,
			RequestStage: fetch.RequestStageRequest,
		})
	}

	chromedp.ListenTarget(p.ctx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Listeners must not block; CDP calls go on their own goroutine.
		go p.continueRequest(paused, hook)
	})

	return p.run(ctx, fetch.Enable().WithPatterns(reqPatterns))
}

func (p *chromePage) continueRequest(ev *fetch.EventRequestPaused, hook RequestHook) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(p.ctx, c.Target)

	cont := fetch.ContinueRequest(ev.RequestID)

	extra, err := hook(p.ctx, ev.Request.URL)
	if err != nil {
		p.logger.Warn("engine: request hook failed",
			slog.String("url", ev.Request.URL),
			slog.Any("error", err),
		)
	}
	if len(extra) > 0 {
		headers := make([]*fetch.HeaderEntry, 0, len(ev.Request.Headers)+len(extra))
		for name, v := range ev.Request.Headers {
			if _, override := lookupHeader(extra, name); override {
				continue
			}
			headers = append(headers, &fetch.HeaderEntry{Name: name, Value: fmt.Sprint(v)})
		}
		for name, v := range extra {
			headers = append(headers, &fetch.HeaderEntry{Name: name, Value: v})
		}
		cont = cont.WithHeaders(headers)
	}

	if err := cont.Do(execCtx); err != nil && p.ctx.Err() == nil {
		p.logger.Warn("engine: continue request", slog.String("url", ev.Request.URL), slog.Any("error", err))
	}
}

func lookupHeader(h map[string]string, name string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) AddScript(ctx context.Context, source string) error {
	var res *runtime.RemoteObject
	return p.run(ctx, chromedp.Evaluate(source, &res))
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, arg any) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(arg)
	if err != nil {
		return fmt.Errorf("engine: encode argument: %w", err)
	}

	call := fmt.Sprintf("(%s)(%s)", expr, data)
	var res *runtime.RemoteObject
	return p.run(ctx, chromedp.Evaluate(call, &res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
}

func (p *chromePage) PrintToPDF(ctx context.Context, opts PrintOptions) ([]byte, error) {
	params, err := printParams(opts)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	err = p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := params.Do(ctx)
		pdf = data
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("engine: print to pdf: %w", err)
	}
	return pdf, nil
}

func printParams(opts PrintOptions) (*cdppage.PrintToPDFParams, error) {
	w, h, err := opts.PaperSize()
	if err != nil {
		return nil, err
	}

	var margins [4]float64
	for i, m := range []string{opts.Margin.Top, opts.Margin.Bottom, opts.Margin.Left, opts.Margin.Right} {
		if margins[i], err = ParseLength(m); err != nil {
			return nil, err
		}
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	// Chrome wants an empty span to suppress its default header/footer.
	header, footer := opts.HeaderTemplate, opts.FooterTemplate
	if header == "" {
		header = "<span></span>"
	}
	if footer == "" {
		footer = "<span></span>"
	}

	// Landscape is already applied by PaperSize.
	return cdppage.PrintToPDF().
		WithPaperWidth(w).
		WithPaperHeight(h).
		WithMarginTop(margins[0]).
		WithMarginBottom(margins[1]).
		WithMarginLeft(margins[2]).
		WithMarginRight(margins[3]).
		WithScale(scale).
		WithPrintBackground(deref(opts.PrintBackground)).
		WithPreferCSSPageSize(deref(opts.PreferCSSPageSize)).
		WithDisplayHeaderFooter(deref(opts.DisplayHeaderFooter)).
		WithHeaderTemplate(header).
		WithFooterTemplate(footer), nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
