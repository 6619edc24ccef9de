package catalog

import (
	"context"
	"time"
)

// Refresher keeps the cache warm by calling Load on a fixed interval.
type Refresher struct {
	Store    *Store
	Interval time.Duration
}

// Run blocks until ctx is done. A non-positive Interval returns immediately.
func (r Refresher) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		return nil
	}

	t := time.NewTicker(r.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Store.Load(ctx)
		}
	}
}
