// Package worker drives the periodic jobs: the recurring sweep and the
// budget refresh.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/metrics"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

// Sweeper fans the recurring sweep out over active rules. Rules are
// independent, and the claim row in the execution journal keeps concurrent
// work on the same rule safe, so a bounded errgroup is enough.
type Sweeper struct {
	storage     *storage.SQLiteRepository
	scheduler   *services.RecurringScheduler
	metrics     *metrics.MetricsCollector
	concurrency int
}

func NewSweeper(storage *storage.SQLiteRepository, scheduler *services.RecurringScheduler, collector *metrics.MetricsCollector, concurrency int) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		storage:     storage,
		scheduler:   scheduler,
		metrics:     collector,
		concurrency: concurrency,
	}
}

// Run sweeps every active rule up to asOf. A rule that cannot be processed
// is logged and skipped; the sweep keeps going so one broken rule does not
// starve the others.
func (s *Sweeper) Run(ctx context.Context, asOf core.Date) (executed, failed int, err error) {
	started := time.Now()

	rules, err := s.storage.ListActiveRules(ctx)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, rule := range rules {
		g.Go(func() error {
			e, f, err := s.scheduler.ExecuteDueForRule(ctx, rule, asOf)
			mu.Lock()
			executed += e
			failed += f
			mu.Unlock()
			if err != nil {
				slog.ErrorContext(ctx, "Sweep skipped rule",
					"rule_id", rule.ID,
					"rule_name", rule.Name,
					"error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return executed, failed, err
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(time.Since(started), executed, failed)
	}
	slog.InfoContext(ctx, "Sweep finished",
		"rules", len(rules),
		"executed", executed,
		"failed", failed,
		"as_of", asOf.String(),
		"duration_ms", time.Since(started).Milliseconds())
	return executed, failed, nil
}
