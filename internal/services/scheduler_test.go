package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/storage"
)

func newTestStorage(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bilancio.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func monthlyRentRule() core.RecurringRule {
	return core.RecurringRule{
		Name:      "rent",
		Frequency: core.Monthly,
		Config:    core.FrequencyConfig{MonthDays: []int{1}},
		Template: core.TransactionTemplate{
			Description: "Rent",
			Postings: []core.Posting{
				{Account: "Expenses:Housing:Rent", Amount: decimal.RequireFromString("1200"), Currency: "EUR"},
				{Account: "Assets:Checking", Amount: decimal.RequireFromString("-1200"), Currency: "EUR"},
			},
		},
		StartDate: core.NewDate(2024, 1, 1),
		Active:    true,
	}
}

func TestExecuteCreatesOneTransaction(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	scheduler := NewRecurringScheduler(repo, book, nil)
	ctx := context.Background()

	rule := monthlyRentRule()
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id
	date := core.NewDate(2024, 2, 1)

	first, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if first.Status != core.ExecutionExecuted || first.TransactionID == "" {
		t.Fatalf("unexpected record: %+v", first)
	}

	second, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if second.ID != first.ID || second.TransactionID != first.TransactionID {
		t.Errorf("second execute returned a different record: %+v vs %+v", second, first)
	}

	if got := len(book.Transactions()); got != 1 {
		t.Errorf("ledger has %d transactions, want 1", got)
	}
}

func TestExecuteRecordsLedgerFailureAndRetries(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	book.RestrictAccounts("Assets:Checking") // rent account unknown
	scheduler := NewRecurringScheduler(repo, book, nil)
	ctx := context.Background()

	rule := monthlyRentRule()
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id
	date := core.NewDate(2024, 2, 1)

	failed, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if failed.Status != core.ExecutionFailed || failed.ErrorMessage == "" {
		t.Fatalf("unexpected record: %+v", failed)
	}
	if len(book.Transactions()) != 0 {
		t.Fatal("failed execution must not write to the ledger")
	}

	book.RestrictAccounts("Expenses:Housing:Rent", "Assets:Checking")
	retried, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != core.ExecutionExecuted {
		t.Fatalf("retry left status %s", retried.Status)
	}
	if retried.ID != failed.ID {
		t.Errorf("retry created a new journal row: %d vs %d", retried.ID, failed.ID)
	}
	if len(book.Transactions()) != 1 {
		t.Errorf("ledger has %d transactions, want 1", len(book.Transactions()))
	}
}

func TestRetryClaimIsExclusive(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	book.RestrictAccounts("Assets:Checking") // rent account unknown
	scheduler := NewRecurringScheduler(repo, book, nil)
	ctx := context.Background()

	rule := monthlyRentRule()
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id
	date := core.NewDate(2024, 2, 1)

	failed, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if failed.Status != core.ExecutionFailed {
		t.Fatalf("unexpected record: %+v", failed)
	}

	// A concurrent retry already holds the claim for this occurrence.
	reclaimed, err := repo.ReclaimFailed(ctx, failed.ID)
	if err != nil || !reclaimed {
		t.Fatalf("reclaim: %v (reclaimed=%v)", err, reclaimed)
	}

	book.RestrictAccounts("Expenses:Housing:Rent", "Assets:Checking")
	got, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("losing retry: %v", err)
	}
	if got.Status != core.ExecutionPending {
		t.Errorf("losing retry got status %s, want pending", got.Status)
	}
	if len(book.Transactions()) != 0 {
		t.Errorf("losing retry wrote %d transactions, want 0", len(book.Transactions()))
	}
}

func TestExecuteReclaimsAbandonedClaim(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	scheduler := NewRecurringScheduler(repo, book, nil)
	scheduler.claimGrace = 0
	ctx := context.Background()

	rule := monthlyRentRule()
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id
	date := core.NewDate(2024, 2, 1)

	// A claim whose worker died before writing the ledger.
	orphan, _, err := repo.ClaimExecution(ctx, rule.ID, date)
	if err != nil {
		t.Fatal(err)
	}

	got, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Status != core.ExecutionExecuted || got.ID != orphan.ID {
		t.Errorf("unexpected record: %+v (orphan id %d)", got, orphan.ID)
	}
	if len(book.Transactions()) != 1 {
		t.Errorf("ledger has %d transactions, want 1", len(book.Transactions()))
	}
}

func TestExecuteLeavesLiveClaimAlone(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	scheduler := NewRecurringScheduler(repo, book, nil)
	ctx := context.Background()

	rule := monthlyRentRule()
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id
	date := core.NewDate(2024, 2, 1)

	if _, _, err := repo.ClaimExecution(ctx, rule.ID, date); err != nil {
		t.Fatal(err)
	}

	got, err := scheduler.Execute(ctx, rule, date)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Status != core.ExecutionPending {
		t.Errorf("status = %s, want pending while the claim is live", got.Status)
	}
	if len(book.Transactions()) != 0 {
		t.Errorf("ledger has %d transactions, want 0", len(book.Transactions()))
	}
}

func TestExecuteInactiveRule(t *testing.T) {
	scheduler := NewRecurringScheduler(newTestStorage(t), memory.New(), nil)

	rule := monthlyRentRule()
	rule.Active = false
	if _, err := scheduler.Execute(context.Background(), rule, core.NewDate(2024, 2, 1)); !errors.Is(err, core.ErrRuleInactive) {
		t.Errorf("error = %v, want ErrRuleInactive", err)
	}
}

func TestListDueSubtractsHandledOccurrences(t *testing.T) {
	repo := newTestStorage(t)
	scheduler := NewRecurringScheduler(repo, memory.New(), nil)
	ctx := context.Background()

	rule := monthlyRentRule()
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id
	asOf := core.NewDate(2024, 3, 15)

	due, err := scheduler.ListDue(ctx, rule, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 3 {
		t.Fatalf("due = %v, want 3 dates", due)
	}

	if _, err := scheduler.Execute(ctx, rule, due[0]); err != nil {
		t.Fatal(err)
	}

	due, err = scheduler.ListDue(ctx, rule, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || !due[0].Equal(core.NewDate(2024, 2, 1)) {
		t.Errorf("due after execute = %v", due)
	}
}

func TestListDueWindow(t *testing.T) {
	repo := newTestStorage(t)
	scheduler := NewRecurringScheduler(repo, memory.New(), nil)
	ctx := context.Background()

	rule := monthlyRentRule()
	rule.EndDate = core.NewDate(2024, 2, 15)
	id, err := repo.CreateRule(ctx, rule)
	if err != nil {
		t.Fatal(err)
	}
	rule.ID = id

	due, err := scheduler.ListDue(ctx, rule, core.NewDate(2024, 6, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Errorf("due = %v, want Jan 1 and Feb 1 only", due)
	}

	due, err = scheduler.ListDue(ctx, rule, core.NewDate(2023, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	if due != nil {
		t.Errorf("due before start = %v, want none", due)
	}
}

func TestExecuteAllDue(t *testing.T) {
	repo := newTestStorage(t)
	book := memory.New()
	scheduler := NewRecurringScheduler(repo, book, nil)
	ctx := context.Background()

	rent := monthlyRentRule()
	if _, err := repo.CreateRule(ctx, rent); err != nil {
		t.Fatal(err)
	}

	salary := monthlyRentRule()
	salary.Name = "salary"
	salary.Config = core.FrequencyConfig{MonthDays: []int{25}}
	salary.Template.Description = "Salary"
	salary.Template.Postings = []core.Posting{
		{Account: "Assets:Checking", Amount: decimal.RequireFromString("3000"), Currency: "EUR"},
		{Account: "Income:Salary", Amount: decimal.RequireFromString("-3000"), Currency: "EUR"},
	}
	if _, err := repo.CreateRule(ctx, salary); err != nil {
		t.Fatal(err)
	}

	executed, failed, err := scheduler.ExecuteAllDue(ctx, core.NewDate(2024, 2, 10))
	if err != nil {
		t.Fatal(err)
	}
	// rent: Jan 1, Feb 1. salary: Jan 25.
	if executed != 3 || failed != 0 {
		t.Errorf("executed=%d failed=%d, want 3/0", executed, failed)
	}
	if len(book.Transactions()) != 3 {
		t.Errorf("ledger has %d transactions, want 3", len(book.Transactions()))
	}

	// A second sweep finds nothing new.
	executed, failed, err = scheduler.ExecuteAllDue(ctx, core.NewDate(2024, 2, 10))
	if err != nil {
		t.Fatal(err)
	}
	if executed != 0 || failed != 0 {
		t.Errorf("second sweep executed=%d failed=%d, want 0/0", executed, failed)
	}
}
