package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/store"
)

// ContentCache answers whether a fresh artifact exists for a fingerprint.
type ContentCache struct {
	Output store.Bucket
	TTL    time.Duration
	Now    func() time.Time
}

// Lookup returns the artifact's age and whether it is younger than TTL. A
// missing artifact is a miss, not an error.
func (c *ContentCache) Lookup(ctx context.Context, id string) (age time.Duration, fresh bool, err error) {
	info, err := c.Output.Stat(ctx, domain.ArtifactKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: cache probe: %w", domain.ErrTransientStore, err)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	age = now().Sub(info.LastModified)
	if age < 0 {
		age = 0
	}
	return age, age < c.TTL, nil
}
