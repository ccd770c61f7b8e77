package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// detachedGroup runs fire-and-forget tasks. Failures and panics are logged,
// never propagated; Wait lets shutdown drain what is still running.
type detachedGroup struct {
	wg     sync.WaitGroup
	active atomic.Int64
	logger *slog.Logger
}

func newDetachedGroup(logger *slog.Logger) *detachedGroup {
	return &detachedGroup{logger: logger}
}

// Go starts fn in its own goroutine
func (g *detachedGroup) Go(name string, fn func() error) {
	g.wg.Add(1)
	g.active.Add(1)

	go func() {
		defer g.wg.Done()
		defer g.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("Detached task panicked",
					slog.String("task", name),
					slog.String("panic", fmt.Sprint(r)),
				)
			}
		}()

		if err := fn(); err != nil {
			g.logger.Warn("Detached task failed",
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Active returns the number of running tasks
func (g *detachedGroup) Active() int {
	return int(g.active.Load())
}

// Wait blocks until every task has returned or ctx is done
func (g *detachedGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d detached tasks still running: %w", g.Active(), ctx.Err())
	}
}
