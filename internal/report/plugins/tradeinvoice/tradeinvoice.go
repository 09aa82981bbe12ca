// Package tradeinvoice is the data plugin for the crm-trade-invoice
// template: one trade row, a mandator/client header with an optional
// inlined logo, and blob-storage credentials for the page.
package tradeinvoice

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/engine"
	"github.com/aussiebroadwan/printq/internal/report/plugins/sqlrows"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

const (
	Name = "crm-trade-invoice"

	// BlobRoute matches Azure blob storage requests made by the page.
	BlobRoute = "https://*.blob.core.windows.net/*"

	DefaultTable = "crm_trades"

	maxLogoBytes = 1 << 20
)

type Config struct {
	Table       string
	Placeholder sq.PlaceholderFormat
	BlobToken   oauth2.TokenSource
	HTTPClient  *http.Client
	Now         func() time.Time
}

// Factory returns the constructor registered under Name.
func Factory(cfg Config) templates.Factory {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Placeholder == nil {
		cfg.Placeholder = sq.Question
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(params map[string]any, db *sql.DB) (templates.DataPlugin, error) {
		return &Report{cfg: cfg, params: params, db: db}, nil
	}
}

// Report is one invoice run.
type Report struct {
	cfg    Config
	params map[string]any
	db     *sql.DB

	// data is params with the fetched row merged over it.
	data map[string]any
}

var (
	_ templates.HeaderFooter  = (*Report)(nil)
	_ templates.PrintOptioner = (*Report)(nil)
	_ templates.Authenticator = (*Report)(nil)
)

func (r *Report) Fetch(ctx context.Context) (map[string]any, error) {
	if r.db == nil {
		return nil, fmt.Errorf("%w: %s: no data source configured", domain.ErrConfig, Name)
	}
	tradeID, ok := r.params["tradeid"]
	if !ok || tradeID == nil || tradeID == "" {
		return nil, fmt.Errorf("%w: %s: tradeid is required", domain.ErrValidation, Name)
	}

	q := sq.Select("*").
		From(r.cfg.Table).
		Where(sq.Eq{"tradeId": tradeID}).
		Limit(1).
		PlaceholderFormat(r.cfg.Placeholder)

	row, err := sqlrows.First(ctx, r.db, q)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: trade %v", domain.ErrNotFound, tradeID)
	}

	// The request parameters are kept so the result can be fetched again
	// from a staged payload.
	r.data = make(map[string]any, len(r.params)+len(row))
	maps.Copy(r.data, r.params)
	maps.Copy(r.data, row)
	return r.data, nil
}

var headerTemplate = template.Must(template.New("header").Parse(`
<div style="display:flex;justify-content:space-between;font-size:9px;width:95%;margin:0 auto;">
  <div>
    {{- if .Logo}}<img src="{{.Logo}}" style="height:24px;"/>{{end}}
    <div><strong>Mandator:</strong> {{.Mandator}}</div>
  </div>
  <div>
    <div><strong>Client:</strong> {{.Client}}</div>
    <div><strong>Date:</strong> {{.Date}}</div>
  </div>
</div>`))

var footerTemplate = template.Must(template.New("footer").Parse(`
<div style="width:95%;margin:0 auto;font-size:8px;text-align:center;">
  {{- if .Note}}<div style="font-size:7px;text-align:center;margin-bottom:4px;">{{.Note}}</div>{{end}}
  <span class="pageNumber"></span>/<span class="totalPages"></span>
</div>`))

func (r *Report) HeaderFooter(ctx context.Context) (header, footer string, err error) {
	data := r.data
	if data == nil {
		data = r.params
	}

	var logo template.URL
	if u, _ := data["logo_url"].(string); u != "" {
		if logo, err = r.inlineLogo(ctx, u); err != nil {
			return "", "", err
		}
	}

	date, _ := data["invoicedate"].(string)
	if date == "" {
		date = r.cfg.Now().UTC().Format("02.01.2006")
	}

	header, err = execute(headerTemplate, map[string]any{
		"Logo":     logo,
		"Mandator": str(data["mandatorName"]),
		"Client":   str(data["clientName"]),
		"Date":     date,
	})
	if err != nil {
		return "", "", err
	}
	footer, err = execute(footerTemplate, map[string]any{"Note": str(data["footer_note"])})
	if err != nil {
		return "", "", err
	}
	return header, footer, nil
}

// inlineLogo downloads an SVG and returns it as a data URL, so the header
// does not depend on the page's network access.
func (r *Report) inlineLogo(ctx context.Context, url string) (template.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%s: logo request: %w", Name, err)
	}
	req.Header.Set("x-ms-version", "2021-08-06")
	if r.cfg.BlobToken != nil {
		tok, err := r.cfg.BlobToken.Token()
		if err != nil {
			return "", fmt.Errorf("%s: blob token: %w", Name, err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: logo download: %w", domain.ErrTransientStore, Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: logo download: status %d", domain.ErrTransientStore, Name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
	if err != nil {
		return "", fmt.Errorf("%s: logo read: %w", Name, err)
	}
	return template.URL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(data)), nil
}

func (r *Report) PrintOptions() engine.PrintOptions {
	return engine.PrintOptions{
		Format:              "A4",
		Landscape:           engine.Bool(false),
		PrintBackground:     engine.Bool(true),
		PreferCSSPageSize:   engine.Bool(true),
		DisplayHeaderFooter: engine.Bool(true),
		Margin:              engine.Margin{Top: "15mm", Bottom: "15mm", Left: "15mm", Right: "15mm"},
	}
}

// Authenticate attaches the blob token to the page's blob storage requests.
func (r *Report) Authenticate(ctx context.Context, page engine.Page) error {
	if r.cfg.BlobToken == nil {
		return nil
	}
	return page.Intercept(ctx, []string{BlobRoute}, templates.BearerHook(r.cfg.BlobToken))
}

func execute(t *template.Template, data any) (string, error) {
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%s: %s: %w", Name, t.Name(), err)
	}
	return buf.String(), nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
