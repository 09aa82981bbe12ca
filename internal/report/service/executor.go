package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

// FetchExecutor bounds how many plugin data fetches run at once. Its limit
// is separate from the render admission gate.
type FetchExecutor struct {
	sem *semaphore.Weighted
}

func NewFetchExecutor(limit int) *FetchExecutor {
	if limit <= 0 {
		limit = 1
	}
	return &FetchExecutor{sem: semaphore.NewWeighted(int64(limit))}
}

// Run waits for a slot and calls p.Fetch. A nil result is a validation
// error; a panic in the plugin is returned as an error.
func (e *FetchExecutor) Run(ctx context.Context, name string, p templates.DataPlugin) (result map[string]any, err error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("template %q: data fetch panicked: %v", name, r)
		}
	}()

	result, err = p.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("template %q: data fetch: %w", name, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: template %q: data fetch returned no mapping", domain.ErrValidation, name)
	}
	return result, nil
}
