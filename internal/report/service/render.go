package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/engine"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

// renderHook is evaluated in the page with the params as its argument.
const renderHook = "(d) => window.render && window.render(d)"

// Renderer renders the job with the given fingerprint. It returns the
// template name once the staged payload has been read, even on failure.
type Renderer interface {
	Render(ctx context.Context, id string) (template string, err error)
}

// RenderPipeline produces and uploads the PDF for one staged payload.
type RenderPipeline struct {
	Payloads  store.Bucket
	Output    store.Bucket
	Templates TemplateResolver
	Engine    engine.Engine
	Fetch     *FetchExecutor
	DB        *sql.DB

	// Timeout bounds a single render; zero means none.
	Timeout time.Duration

	// TempDir holds rendered documents; empty means os.TempDir().
	TempDir string
}

var _ Renderer = (*RenderPipeline)(nil)

func (p *RenderPipeline) Render(ctx context.Context, id string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	payload, err := p.loadPayload(ctx, id)
	if err != nil {
		return "", err
	}
	name := payload.Template

	tpl, err := p.Templates.Resolve(name)
	if err != nil {
		return name, err
	}

	params := payload.Params
	var plugin templates.DataPlugin
	if tpl.HasPlugin() {
		if plugin, err = tpl.NewPlugin(params, p.DB); err != nil {
			return name, err
		}
		fetched, err := p.Fetch.Run(ctx, name, plugin)
		if err != nil {
			return name, err
		}
		merged := maps.Clone(params)
		maps.Copy(merged, fetched)
		params = merged
	}

	doc, err := p.writeDocument(tpl, params)
	if err != nil {
		return name, err
	}
	defer os.Remove(doc)

	pdf, err := p.print(ctx, tpl, plugin, doc, params)
	if err != nil {
		return name, fmt.Errorf("%w: %s: %w", domain.ErrRender, name, err)
	}

	if err := p.Output.Put(ctx, domain.ArtifactKey(id), pdf, "application/pdf"); err != nil {
		return name, fmt.Errorf("%w: upload: %w", domain.ErrTransientStore, err)
	}
	return name, nil
}

func (p *RenderPipeline) loadPayload(ctx context.Context, id string) (domain.StagedPayload, error) {
	if !IsFingerprint(id) {
		return domain.StagedPayload{}, fmt.Errorf("%w: message body %q is not a job id", domain.ErrValidation, id)
	}

	data, err := p.Payloads.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.StagedPayload{}, fmt.Errorf("%w: staged payload %s: %w", domain.ErrNotFound, id, err)
	}
	if err != nil {
		return domain.StagedPayload{}, fmt.Errorf("%w: read payload: %w", domain.ErrTransientStore, err)
	}

	var payload domain.StagedPayload
	if err := canonicalJSON.Unmarshal(data, &payload); err != nil {
		return domain.StagedPayload{}, fmt.Errorf("%w: staged payload %s: %w", domain.ErrValidation, id, err)
	}
	if payload.Template == "" {
		return domain.StagedPayload{}, fmt.Errorf("%w: staged payload %s has no template", domain.ErrValidation, id)
	}
	if payload.Params == nil {
		payload.Params = map[string]any{}
	}
	return payload, nil
}

// writeDocument renders the markup into a temp *.html file and returns its
// path. The caller removes it.
func (p *RenderPipeline) writeDocument(tpl *templates.Template, params map[string]any) (string, error) {
	f, err := os.CreateTemp(p.TempDir, "printq-*.html")
	if err != nil {
		return "", fmt.Errorf("%w: temp document: %w", domain.ErrRender, err)
	}
	path := f.Name()

	if err := tpl.Execute(f, params); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: %w", domain.ErrRender, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: temp document: %w", domain.ErrRender, err)
	}
	return path, nil
}

func (p *RenderPipeline) print(ctx context.Context, tpl *templates.Template, plugin templates.DataPlugin, doc string, params map[string]any) ([]byte, error) {
	page, err := p.Engine.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := page.EmulateMedia(ctx, "screen"); err != nil {
		return nil, fmt.Errorf("emulate media: %w", err)
	}

	if auth, ok := plugin.(templates.Authenticator); ok {
		if err := auth.Authenticate(ctx, page); err != nil {
			return nil, fmt.Errorf("auth hook: %w", err)
		}
	} else {
		patterns, hook, err := tpl.RequestHook()
		if err != nil {
			return nil, fmt.Errorf("auth hook: %w", err)
		}
		if hook != nil {
			if err := page.Intercept(ctx, patterns, hook); err != nil {
				return nil, fmt.Errorf("auth hook: %w", err)
			}
		}
	}

	abs, err := filepath.Abs(doc)
	if err != nil {
		return nil, err
	}
	if err := page.Navigate(ctx, (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	if tpl.Script != "" {
		if err := page.AddScript(ctx, tpl.Script); err != nil {
			return nil, fmt.Errorf("inject script: %w", err)
		}
	}
	if err := page.Evaluate(ctx, renderHook, params); err != nil {
		return nil, fmt.Errorf("render hook: %w", err)
	}

	opts := engine.DefaultPrintOptions().Merge(tpl.Manifest.Print)
	if po, ok := plugin.(templates.PrintOptioner); ok {
		opts = opts.Merge(po.PrintOptions())
	}

	var header, footer string
	if hf, ok := plugin.(templates.HeaderFooter); ok {
		header, footer, err = hf.HeaderFooter(ctx)
	} else {
		header, footer, err = tpl.HeaderFooter(params)
	}
	if err != nil {
		return nil, fmt.Errorf("header/footer: %w", err)
	}

	return page.PrintToPDF(ctx, opts.WithHeaderFooter(header, footer))
}
