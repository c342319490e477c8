package community

import (
	"context"
	"time"

	"parishnet.org/internal/obs"
)

const defaultSweepInterval = time.Hour

// Sweeper periodically hard-purges rows whose expiry has passed. Soft-deleted
// rows survive until their expires_at does the same; the audit log is never
// swept.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
}

// NewSweeper constructs a sweeper. A non-positive interval falls back to the
// hourly default.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Run blocks until ctx ends, purging once immediately and then on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	purged, err := s.store.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		obs.Warn("sweep failed", map[string]any{"error": err.Error()})
		return
	}
	if purged > 0 {
		obs.LogRequest(map[string]any{"event": "sweep", "purged": purged})
	}
}
