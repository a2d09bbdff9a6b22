package worker

import (
	"context"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/metrics"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

// Refresher recomputes the cycle projection of every active budget. It runs
// on a timer and on execution events, so budget figures follow the ledger
// without a read having to pay the recompute cost.
type Refresher struct {
	storage *storage.SQLiteRepository
	engine  *services.BudgetEngine
	metrics *metrics.MetricsCollector
}

func NewRefresher(storage *storage.SQLiteRepository, engine *services.BudgetEngine, collector *metrics.MetricsCollector) *Refresher {
	return &Refresher{
		storage: storage,
		engine:  engine,
		metrics: collector,
	}
}

// Run refreshes all active budgets as of the given date. Budgets that fail
// to refresh are logged and skipped.
func (r *Refresher) Run(ctx context.Context, asOf core.Date) error {
	budgets, err := r.storage.ListActiveBudgets(ctx)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, budget := range budgets {
		cycles, err := r.engine.CyclesUpTo(ctx, budget, asOf)
		if err != nil {
			slog.ErrorContext(ctx, "Budget refresh failed",
				"budget_id", budget.ID,
				"budget_name", budget.Name,
				"error", err)
			continue
		}
		refreshed++

		if r.metrics != nil {
			for _, c := range cycles {
				r.metrics.RecordCycle(c.Partial)
			}
			if len(cycles) > 0 {
				current := cycles[len(cycles)-1]
				r.metrics.UpdateBudgetUsage(budget.Name, budget.Currency, current.UsageRate)
			}
		}
	}

	slog.InfoContext(ctx, "Budget refresh finished",
		"budgets", len(budgets),
		"refreshed", refreshed,
		"as_of", asOf.String())
	return nil
}

// HandleExecutionEvent reacts to a recurring execution materializing in the
// ledger. Any budget may be affected, so the whole projection is refreshed.
func (r *Refresher) HandleExecutionEvent(ctx context.Context, msg *amqp.ExecutionEventMessage) error {
	if msg.Status != string(core.ExecutionExecuted) {
		return nil // failed claims never reached the ledger
	}
	slog.InfoContext(ctx, "Refreshing budgets after execution event",
		"execution_id", msg.ExecutionID,
		"rule_id", msg.RuleID,
		"date", msg.Date)
	return r.Run(ctx, core.DateOf(time.Now()))
}
