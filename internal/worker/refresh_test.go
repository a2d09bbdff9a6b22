package worker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/services"
)

func TestRefresherRun(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	book.AddPosting(core.NewDate(2024, 1, 10), "Expenses:Food:Groceries", decimal.RequireFromString("-600"), "EUR")

	engine := services.NewBudgetEngine(repo, book, memory.NewFixedRates(nil), 0.8, 1.0)
	refresher := NewRefresher(repo, engine, nil)
	ctx := context.Background()

	budget := core.Budget{
		Name:       "groceries",
		Amount:     decimal.RequireFromString("1000"),
		Currency:   "EUR",
		PeriodType: core.PeriodMonthly,
		CycleType:  core.CycleMonthly,
		StartDate:  core.NewDate(2024, 1, 1),
		Items:      []core.BudgetItem{{AccountPattern: "Expenses:Food:*"}},
		Active:     true,
	}
	budgetID, err := repo.CreateBudget(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}

	if err := refresher.Run(ctx, core.NewDate(2024, 2, 15)); err != nil {
		t.Fatal(err)
	}

	cycles, err := repo.ListCycles(ctx, budgetID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 2 {
		t.Fatalf("persisted %d cycles, want 2", len(cycles))
	}
	if !cycles[0].SpentAmount.Equal(decimal.RequireFromString("600")) {
		t.Errorf("jan spent = %s, want 600", cycles[0].SpentAmount)
	}
}

func TestHandleExecutionEventIgnoresFailures(t *testing.T) {
	repo := newTestStorage(t)
	engine := services.NewBudgetEngine(repo, memory.New(), memory.NewFixedRates(nil), 0.8, 1.0)
	refresher := NewRefresher(repo, engine, nil)

	msg := amqp.NewExecutionEventMessage(1, 1, "2024-01-01", string(core.ExecutionFailed), "")
	if err := refresher.HandleExecutionEvent(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
}
