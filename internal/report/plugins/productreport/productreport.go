// Package productreport is the data plugin for the product-de template. It
// loads the product header and its tables concurrently.
package productreport

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/engine"
	"github.com/aussiebroadwan/printq/internal/report/plugins/sqlrows"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

const (
	Name = "product-de"

	// Latest selects the most recent product snapshot.
	Latest = "latest"

	displayDate = "02.01.2006"
	rowLimit    = 100
)

type Config struct {
	Placeholder sq.PlaceholderFormat
	Company     string
	Now         func() time.Time
}

func Factory(cfg Config) templates.Factory {
	if cfg.Placeholder == nil {
		cfg.Placeholder = sq.Question
	}
	if cfg.Company == "" {
		cfg.Company = "Picard Angst AG, Bahnhofstr. 13-15, CH-8808 Pfäffikon SZ"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(params map[string]any, db *sql.DB) (templates.DataPlugin, error) {
		return &Report{cfg: cfg, params: params, db: db}, nil
	}
}

type Report struct {
	cfg    Config
	params map[string]any
	db     *sql.DB

	productDate string
}

var (
	_ templates.HeaderFooter  = (*Report)(nil)
	_ templates.PrintOptioner = (*Report)(nil)
)

// section is one independent query whose result lands under key. An empty
// key merges the first row into the top level.
type section struct {
	key   string
	query sq.SelectBuilder
}

func (r *Report) sections(isin, date string) []section {
	where := sq.And{sq.Eq{"isin": isin}, sq.Eq{"product_date": date}}
	sel := func(cols ...string) sq.SelectBuilder {
		return sq.Select(cols...).Where(where).PlaceholderFormat(r.cfg.Placeholder)
	}

	return []section{
		{"", sel(
			"titleDe", "nameDe", "issuerName", "isin", "valor", "wkn",
			"productTypeDe", "CurrencyDE", "nominalDE", "issuePriceDE",
			"guarantorName", "capDE", "settlementTypeDe", "initialFixingDateDE",
			"finalFixingDateDE", "redemptionDateDE", "couponTextDE",
			"latestPriceDateDE", "latestBidDE", "latestAskDE", "product_date",
		).From("clients.products_header_info").Limit(1)},
		{"underlyings", sel(
			"Underlying_BBG", "Underlying_NameDE", "CurrencyDE", "Initial_FixingDE",
			"Strike_Level_PctDE", "Strike_PriceDE", "Underlying_Last_PriceDE",
			"Pct_InitialFixingDE",
		).From("clients.products_underlyings").Limit(rowLimit)},
		{"observations", sel(
			"observationTypeDE", "monitoringTypeDE", "observationdateDE",
			"paymentDateDE", "observationlevelpct",
		).From("clients.products_upcoming_obs").Limit(rowLimit)},
	}
}

func (r *Report) Fetch(ctx context.Context) (map[string]any, error) {
	if r.db == nil {
		return nil, fmt.Errorf("%w: %s: no data source configured", domain.ErrConfig, Name)
	}
	isin, _ := r.params["isin"].(string)
	date, _ := r.params["date"].(string)
	if isin == "" || date == "" {
		return nil, fmt.Errorf("%w: %s: isin and date are required", domain.ErrValidation, Name)
	}

	secs := r.sections(isin, date)
	results := make([][]map[string]any, len(secs))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range secs {
		g.Go(func() error {
			rows, err := sqlrows.Query(gctx, r.db, s.query)
			if err != nil {
				return fmt.Errorf("%s: section %q: %w", Name, s.key, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := maps.Clone(r.params)
	if out == nil {
		out = make(map[string]any)
	}
	for i, s := range secs {
		if s.key == "" {
			if len(results[i]) > 0 {
				maps.Copy(out, results[i][0])
			}
			continue
		}
		rows := results[i]
		if rows == nil {
			rows = []map[string]any{}
		}
		out[s.key] = rows
	}

	if pd, ok := out["product_date"].(string); ok {
		out["product_date"] = r.formatDate(pd)
		r.productDate = out["product_date"].(string)
	}
	return out, nil
}

// formatDate renders a stored product date for display. Latest means today.
func (r *Report) formatDate(s string) string {
	if s == Latest {
		return r.cfg.Now().Format(displayDate)
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(displayDate)
		}
	}
	return s
}

func (r *Report) HeaderFooter(context.Context) (header, footer string, err error) {
	date := r.productDate
	if date == "" {
		date = r.cfg.Now().Format(displayDate)
	}

	header, err = templates.RenderString("product-header", `
<div style="display:flex;justify-content:flex-end;width:85.8%;padding-left:7.2%;font-size:7px;color:lightgrey;">
  <span>Produktreport, {{.}}</span>
</div>`, date)
	if err != nil {
		return "", "", err
	}

	footer, err = templates.RenderString("product-footer", `
<div style="display:flex;justify-content:space-between;align-items:center;width:93%;font-size:7px;color:lightgrey;">
  <div style="padding-left:60px;"><span>{{.}}</span></div>
  <div style="flex-grow:1;text-align:right;"><span class="pageNumber"></span>/<span class="totalPages"></span></div>
</div>`, r.cfg.Company)
	if err != nil {
		return "", "", err
	}
	return header, footer, nil
}

func (r *Report) PrintOptions() engine.PrintOptions {
	return engine.PrintOptions{
		Format:              "A4",
		DisplayHeaderFooter: engine.Bool(true),
		Margin:              engine.Margin{Top: "20mm", Bottom: "20mm", Left: "10mm", Right: "10mm"},
	}
}
