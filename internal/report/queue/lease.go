package queue

import (
	"context"
	"time"
)

// KeepAlive calls renew every interval until the returned stop function is
// called or max has elapsed since the start. A renewal error ends the loop
// and is passed to onErr.
func KeepAlive(interval, max time.Duration, renew func(context.Context) error, onErr func(error)) (stop func()) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if max > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), max)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := renew(ctx); err != nil {
					if ctx.Err() == nil && onErr != nil {
						onErr(err)
					}
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
