package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes leftovers and returns how many it removed
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Cleaner periodically tears down finished sessions and leftover judge
// resources
type Cleaner struct {
	sweepers []Sweeper
	interval time.Duration
	done     chan struct{}
}

// NewCleaner creates a new cleanup worker
func NewCleaner(interval time.Duration, sweepers ...Sweeper) *Cleaner {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Cleaner{
		sweepers: sweepers,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// Done is closed once the worker has stopped
func (c *Cleaner) Done() <-chan struct{} {
	return c.done
}

func (c *Cleaner) run(ctx context.Context) {
	defer close(c.done)
	slog.Info("cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	total := 0
	for _, sw := range c.sweepers {
		total += sw.Sweep(ctx)
	}
	if total > 0 {
		slog.Info("cleanup cycle removed items", "count", total)
	}
}
