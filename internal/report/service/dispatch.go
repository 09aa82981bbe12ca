package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/internal/report/templates"
	"github.com/aussiebroadwan/printq/pkg/slogx"
)

// TemplateResolver is satisfied by *templates.Loader.
type TemplateResolver interface {
	Resolve(name string) (*templates.Template, error)
}

// JobDispatcher turns a submit into either a cache hit or a queued job.
//
// Two concurrent dispatches of the same input may both stage and enqueue.
// The staged payload is overwritten with identical content and the worker
// renders twice to the same key, so no lock is taken.
type JobDispatcher struct {
	Cache     *ContentCache
	Templates TemplateResolver
	Payloads  store.Bucket
	Producer  queue.Producer
	Fetch     *FetchExecutor

	// DB is handed to data plugins; nil when no data source is configured.
	DB *sql.DB
}

// Dispatch validates the template name, then returns StatusCached for a
// fresh artifact or stages the payload and enqueues its fingerprint.
func (d *JobDispatcher) Dispatch(ctx context.Context, template string, params map[string]any) (domain.DispatchResult, error) {
	l := slogx.FromContext(ctx)

	if err := templates.ValidateName(template); err != nil {
		return domain.DispatchResult{}, err
	}

	id, err := Fingerprint(template, params)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	age, fresh, err := d.Cache.Lookup(ctx, id)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if fresh {
		secs := int(age.Seconds())
		l.Debug("dispatch cache hit", slog.String("payload_id", id), slog.Int("age_seconds", secs))
		return domain.DispatchResult{Status: domain.StatusCached, ID: id, AgeSeconds: &secs}, nil
	}

	tpl, err := d.Templates.Resolve(template)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	staged := params
	if tpl.HasPlugin() {
		plugin, err := tpl.NewPlugin(params, d.DB)
		if err != nil {
			return domain.DispatchResult{}, err
		}
		if staged, err = d.Fetch.Run(ctx, template, plugin); err != nil {
			return domain.DispatchResult{}, err
		}
	}
	if staged == nil {
		staged = map[string]any{}
	}

	body, err := canonicalJSON.Marshal(domain.StagedPayload{Template: template, Params: staged})
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("%w: encode payload: %w", domain.ErrValidation, err)
	}
	if err := d.Payloads.Put(ctx, id, body, "application/json"); err != nil {
		return domain.DispatchResult{}, fmt.Errorf("%w: stage payload: %w", domain.ErrTransientStore, err)
	}
	if err := d.Producer.Send(ctx, []byte(id)); err != nil {
		return domain.DispatchResult{}, fmt.Errorf("%w: enqueue: %w", domain.ErrTransientStore, err)
	}

	l.Info("job queued",
		slog.String("template", template),
		slog.String("payload_id", id),
		slog.Bool("plugin", tpl.HasPlugin()),
	)
	return domain.DispatchResult{Status: domain.StatusQueued, ID: id}, nil
}
