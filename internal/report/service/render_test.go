package service_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/engine"
	"github.com/aussiebroadwan/printq/internal/report/engine/enginetest"
	"github.com/aussiebroadwan/printq/internal/report/service"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/memory"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

type renderFixture struct {
	p        *service.RenderPipeline
	payloads *memory.Bucket
	output   *memory.Bucket
	engine   *enginetest.Engine
	tempDir  string
}

func newRenderFixture(t *testing.T, reg *templates.Registry, files map[string]string) *renderFixture {
	t.Helper()
	f := &renderFixture{
		payloads: memory.NewBucket(),
		output:   memory.NewBucket(),
		engine:   &enginetest.Engine{},
		tempDir:  t.TempDir(),
	}
	f.p = &service.RenderPipeline{
		Payloads:  f.payloads,
		Output:    f.output,
		Templates: newLoader(t, reg, files),
		Engine:    f.engine,
		Fetch:     service.NewFetchExecutor(1),
		TempDir:   f.tempDir,
	}
	return f
}

func (f *renderFixture) stage(t *testing.T, payload string) string {
	t.Helper()
	id := sha(payload)
	require.NoError(t, f.payloads.Put(context.Background(), id, []byte(payload), "application/json"))
	return id
}

func (f *renderFixture) requireCleanedUp(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	require.Empty(t, entries, "temporary documents must be removed")
	require.Zero(t, f.engine.OpenPages(), "pages must be closed")
}

func TestRenderUploadsPDF(t *testing.T) {
	f := newRenderFixture(t, nil, map[string]string{
		"t1.html": "<h1>{{.title}}</h1>",
		"t1.js":   "window.render = (d) => document.title = d.title",
		"t1.yaml": "print:\n  landscape: true\n  margin: {left: 5mm}\nheader: '<span>{{.title}}</span>'\n",
	})
	id := f.stage(t, `{"template":"t1","params":{"title":"Q3"}}`)

	name, err := f.p.Render(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "t1", name)

	pdf, err := f.output.Get(context.Background(), domain.ArtifactKey(id))
	require.NoError(t, err)
	require.Equal(t, enginetest.PDF, pdf)

	info, err := f.output.Stat(context.Background(), domain.ArtifactKey(id))
	require.NoError(t, err)
	require.Equal(t, "application/pdf", info.ContentType)

	calls := f.engine.Calls()
	require.Len(t, calls, 1)
	c := calls[0]
	require.Equal(t, "screen", c.Media)
	require.True(t, strings.HasPrefix(c.URL, "file://"))
	require.True(t, strings.HasSuffix(c.URL, ".html"))
	require.Equal(t, []string{"window.render = (d) => document.title = d.title"}, c.Scripts)
	require.Contains(t, c.Expr, "window.render")
	require.Equal(t, map[string]any{"title": "Q3"}, c.Arg)

	require.True(t, *c.Options.Landscape)
	require.Equal(t, "5mm", c.Options.Margin.Left)
	require.Equal(t, "20mm", c.Options.Margin.Top)
	require.Equal(t, "<span>Q3</span>", c.Options.HeaderTemplate)
	require.True(t, *c.Options.DisplayHeaderFooter)

	f.requireCleanedUp(t)
}

func TestRenderWritesEscapedDocument(t *testing.T) {
	f := newRenderFixture(t, nil, map[string]string{"t.html": "<p>{{.v}}</p>"})
	id := f.stage(t, `{"template":"t","params":{"v":"<img src=x onerror=alert(1)>"}}`)

	var doc string
	f.engine.OnPrint = func(context.Context) error {
		path := strings.TrimPrefix(f.engine.Calls()[0].URL, "file://")
		data, err := os.ReadFile(path)
		doc = string(data)
		return err
	}

	_, err := f.p.Render(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "<p>&lt;img src=x onerror=alert(1)&gt;</p>", doc)
}

type fullPlugin struct {
	params map[string]any
}

func (p *fullPlugin) Fetch(context.Context) (map[string]any, error) {
	return map[string]any{"title": "from-plugin", "extra": true}, nil
}

func (p *fullPlugin) HeaderFooter(context.Context) (string, string, error) {
	return "", "<footer/>", nil
}

func (p *fullPlugin) PrintOptions() engine.PrintOptions {
	return engine.PrintOptions{Format: "Letter", Landscape: engine.Bool(false)}
}

func (p *fullPlugin) Authenticate(ctx context.Context, page engine.Page) error {
	return page.Intercept(ctx, []string{"https://assets.example.com/*"}, func(context.Context, string) (map[string]string, error) {
		return nil, nil
	})
}

func TestRenderUsesPluginCapabilities(t *testing.T) {
	reg := templates.NewRegistry()
	reg.MustRegister("rich", func(params map[string]any, _ *sql.DB) (templates.DataPlugin, error) {
		return &fullPlugin{params: params}, nil
	})
	f := newRenderFixture(t, reg, map[string]string{
		"rich.html": "{{.title}}",
		"rich.yaml": "print:\n  landscape: true\n  format: A3\nheader: manifest-header\n",
	})
	id := f.stage(t, `{"template":"rich","params":{"title":"staged","keep":1}}`)

	_, err := f.p.Render(context.Background(), id)
	require.NoError(t, err)

	c := f.engine.Calls()[0]
	require.Equal(t, []string{"https://assets.example.com/*"}, c.Patterns)

	arg := c.Arg.(map[string]any)
	require.Equal(t, "from-plugin", arg["title"])
	require.Equal(t, true, arg["extra"])
	require.Contains(t, arg, "keep")

	require.Equal(t, "Letter", c.Options.Format)
	require.False(t, *c.Options.Landscape)
	require.Empty(t, c.Options.HeaderTemplate)
	require.Equal(t, "<footer/>", c.Options.FooterTemplate)
	f.requireCleanedUp(t)
}

func TestRenderFailuresCleanUp(t *testing.T) {
	f := newRenderFixture(t, nil, map[string]string{"t.html": "x"})
	id := f.stage(t, `{"template":"t"}`)

	f.engine.PrintErr = errors.New("target crashed")
	name, err := f.p.Render(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrRender)
	require.Equal(t, "t", name)

	_, err = f.output.Stat(context.Background(), domain.ArtifactKey(id))
	require.Error(t, err)
	f.requireCleanedUp(t)
}

func TestRenderPayloadErrors(t *testing.T) {
	f := newRenderFixture(t, nil, map[string]string{"t.html": "{{template \"missing\"}}"})
	ctx := context.Background()

	name, err := f.p.Render(ctx, sha("never staged"))
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Empty(t, name)

	_, err = f.p.Render(ctx, "not-a-fingerprint")
	require.ErrorIs(t, err, domain.ErrValidation)

	id := f.stage(t, `{"params":{}}`)
	_, err = f.p.Render(ctx, id)
	require.ErrorIs(t, err, domain.ErrValidation)

	id = f.stage(t, `{"template":"../escape"}`)
	name, err = f.p.Render(ctx, id)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, "../escape", name)

	id = f.stage(t, `{"template":"t"}`)
	_, err = f.p.Render(ctx, id)
	require.ErrorIs(t, err, domain.ErrRender)
	f.requireCleanedUp(t)
}
