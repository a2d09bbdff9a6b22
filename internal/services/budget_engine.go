package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/storage"
)

// ErrNoCycle is returned when a query date falls outside every cycle of a
// budget, e.g. after a bounded budget has ended.
var ErrNoCycle = errors.New("date not covered by any budget cycle")

// BudgetEngine computes budget cycles lazily. Cycles are never advanced by a
// clock: each query recomputes the chain from the budget start up to the
// query date, so carry-over is always consistent with the ledger as it is
// now. Computed cycles are upserted as a memoized projection.
type BudgetEngine struct {
	storage  *storage.SQLiteRepository
	source   ledger.PostingSource
	rates    ledger.RateProvider
	warnAt   float64
	exceedAt float64
}

func NewBudgetEngine(storage *storage.SQLiteRepository, source ledger.PostingSource, rates ledger.RateProvider, warnAt, exceedAt float64) *BudgetEngine {
	return &BudgetEngine{
		storage:  storage,
		source:   source,
		rates:    rates,
		warnAt:   warnAt,
		exceedAt: exceedAt,
	}
}

// CyclesUpTo computes every cycle of the budget from its start date through
// the cycle containing asOf, in order. Spending in the cycle containing asOf
// covers postings up to and including asOf.
func (e *BudgetEngine) CyclesUpTo(ctx context.Context, budget core.Budget, asOf core.Date) ([]core.BudgetCycle, error) {
	if !budget.Active {
		return nil, core.ErrBudgetInactive
	}
	if err := budget.Validate(); err != nil {
		return nil, fmt.Errorf("budget %d: %w", budget.ID, err)
	}
	if asOf.Before(budget.StartDate) {
		return nil, nil
	}

	var (
		out   []core.BudgetCycle
		carry = decimal.Zero
	)
	for n := 0; ; n++ {
		start, end := cycleBounds(budget, n)
		if start.IsZero() || start.After(asOf) {
			break
		}

		cycle, err := e.computeCycle(ctx, budget, n, start, end, carry, asOf)
		if err != nil {
			return nil, err
		}

		id, err := e.storage.UpsertCycle(ctx, cycle)
		if err != nil {
			return nil, err
		}
		cycle.ID = id
		out = append(out, cycle)
		carry = cycle.Remaining

		if end.IsZero() {
			break // unbounded cycle, nothing follows
		}
		if !budget.EndDate.IsZero() && !end.Before(budget.EndDate.AddDays(1)) {
			break
		}
	}
	return out, nil
}

// CycleFor returns the cycle containing asOf.
func (e *BudgetEngine) CycleFor(ctx context.Context, budget core.Budget, asOf core.Date) (*core.BudgetCycle, error) {
	cycles, err := e.CyclesUpTo(ctx, budget, asOf)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, ErrNoCycle
	}
	last := cycles[len(cycles)-1]
	if !last.PeriodEnd.IsZero() && !asOf.Before(last.PeriodEnd) {
		return nil, ErrNoCycle
	}
	return &last, nil
}

// Summary aggregates all cycles of a budget up to asOf.
func (e *BudgetEngine) Summary(ctx context.Context, budget core.Budget, asOf core.Date) (*core.BudgetSummary, error) {
	cycles, err := e.CyclesUpTo(ctx, budget, asOf)
	if err != nil {
		return nil, err
	}

	summary := &core.BudgetSummary{
		BudgetID:       budget.ID,
		BudgetName:     budget.Name,
		Currency:       budget.Currency,
		CycleCount:     len(cycles),
		TotalAllocated: decimal.Zero,
		TotalSpent:     decimal.Zero,
		TotalRemaining: decimal.Zero,
	}
	for i := range cycles {
		c := cycles[i]
		summary.TotalAllocated = summary.TotalAllocated.Add(c.BaseAmount)
		summary.TotalSpent = summary.TotalSpent.Add(c.SpentAmount)
		summary.Partial = summary.Partial || c.Partial
		if c.PeriodEnd.IsZero() || asOf.Before(c.PeriodEnd) {
			if !asOf.Before(c.PeriodStart) {
				summary.Current = &cycles[i]
			}
		}
	}
	// Carry-over only shifts money between cycles, so the overall position
	// is allocation minus spending regardless of carry settings.
	summary.TotalRemaining = summary.TotalAllocated.Sub(summary.TotalSpent)
	return summary, nil
}

func (e *BudgetEngine) computeCycle(ctx context.Context, budget core.Budget, n int, start, end core.Date, prevRemaining decimal.Decimal, asOf core.Date) (core.BudgetCycle, error) {
	// Spending is aggregated over [start, aggEnd): the full cycle window for
	// closed cycles, and only through asOf for the current one.
	aggEnd := asOf.AddDays(1)
	if !end.IsZero() && end.Before(aggEnd) {
		aggEnd = end
	}

	spent := decimal.Zero
	partial := false
	skipped := 0
	for _, item := range budget.Items {
		res, err := ledger.Aggregate(ctx, e.source, e.rates, item.AccountPattern, start, aggEnd, budget.Currency)
		if err != nil {
			return core.BudgetCycle{}, fmt.Errorf("aggregate %q: %w", item.AccountPattern, err)
		}
		spent = spent.Add(res.Total)
		partial = partial || res.Partial
		skipped += res.Skipped
	}

	base := budget.Amount
	if base.IsZero() {
		for _, item := range budget.Items {
			base = base.Add(item.Amount)
		}
	}

	carried := decimal.Zero
	if n > 0 && budget.CarryOver {
		carried = prevRemaining
		if budget.CarryClampZero && carried.IsNegative() {
			carried = decimal.Zero
		}
	}

	total := base.Add(carried)
	remaining := total.Sub(spent)

	// A non-positive total has no meaningful usage rate; leave it 0.
	var usage float64
	if total.IsPositive() {
		usage, _ = spent.Div(total).Float64()
	}

	cycle := core.BudgetCycle{
		BudgetID:     budget.ID,
		PeriodNumber: n,
		PeriodStart:  start,
		PeriodEnd:    end,
		BaseAmount:   base,
		CarriedOver:  carried,
		TotalAmount:  total,
		SpentAmount:  spent,
		Remaining:    remaining,
		UsageRate:    usage,
		Partial:      partial,
		Status:       core.StatusFor(usage, e.warnAt, e.exceedAt),
	}

	if partial {
		slog.WarnContext(ctx, "Budget cycle computed from partial data",
			"budget_id", budget.ID,
			"period", n,
			"skipped_postings", skipped)
	}
	return cycle, nil
}

// cycleBounds returns the half-open window [start, end) of cycle n. A zero
// end means the cycle is unbounded. A zero start means cycle n does not
// exist.
func cycleBounds(budget core.Budget, n int) (core.Date, core.Date) {
	var start, end core.Date
	switch budget.CycleType {
	case core.CycleNone:
		if n > 0 {
			return core.Date{}, core.Date{}
		}
		start = budget.StartDate
	case core.CycleMonthly:
		start = addMonthsClamped(budget.StartDate, n)
		end = addMonthsClamped(budget.StartDate, n+1)
	case core.CycleYearly:
		start = addMonthsClamped(budget.StartDate, 12*n)
		end = addMonthsClamped(budget.StartDate, 12*(n+1))
	default:
		return core.Date{}, core.Date{}
	}

	if !budget.EndDate.IsZero() {
		bound := budget.EndDate.AddDays(1)
		if !start.Before(bound) {
			return core.Date{}, core.Date{}
		}
		if end.IsZero() || bound.Before(end) {
			end = bound
		}
	}
	return start, end
}

// addMonthsClamped shifts a date by n months, clamping the day to the target
// month's length. time.AddDate normalizes overflow (Jan 31 + 1 month becomes
// Mar 2), which is the wrong behavior for billing-style cycles.
func addMonthsClamped(d core.Date, n int) core.Date {
	months := d.Year()*12 + (d.Month() - 1) + n
	y, m := months/12, months%12+1
	day := d.Day()
	if last := core.DaysInMonth(y, m); day > last {
		day = last
	}
	return core.NewDate(y, m, day)
}
