package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"bilancio/internal/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrIllegalTransition is returned when an execution update would move the
// row out of a status that does not permit the requested transition, e.g.
// a concurrent caller already moved it.
var ErrIllegalTransition = errors.New("illegal execution status transition")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- recurring rules ---

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) (int64, error) {
	cfg, err := json.Marshal(rule.Config)
	if err != nil {
		return 0, fmt.Errorf("marshal frequency config: %w", err)
	}
	tpl, err := json.Marshal(rule.Template)
	if err != nil {
		return 0, fmt.Errorf("marshal template: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (name, frequency, frequency_config, transaction_template, start_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, string(rule.Frequency), string(cfg), string(tpl),
		rule.StartDate.String(), nullableDate(rule.EndDate), boolToInt(rule.Active))
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rule id: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule saved",
		"id", id,
		"name", rule.Name,
		"frequency", rule.Frequency)
	return id, nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id int64) (*core.RecurringRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, frequency, frequency_config, transaction_template, start_date, end_date, is_active
		FROM recurring_rules WHERE id = ?`, id)
	return scanRule(row)
}

func (r *SQLiteRepository) ListActiveRules(ctx context.Context) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, frequency, frequency_config, transaction_template, start_date, end_date, is_active
		FROM recurring_rules WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*core.RecurringRule, error) {
	var (
		rule       core.RecurringRule
		freq       string
		cfg, tpl   string
		start      string
		end        sql.NullString
		activeFlag int
	)
	err := row.Scan(&rule.ID, &rule.Name, &freq, &cfg, &tpl, &start, &end, &activeFlag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	rule.Frequency = core.Frequency(freq)
	rule.Active = activeFlag != 0
	if err := json.Unmarshal([]byte(cfg), &rule.Config); err != nil {
		return nil, fmt.Errorf("unmarshal frequency config: %w", err)
	}
	if err := json.Unmarshal([]byte(tpl), &rule.Template); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	if rule.StartDate, err = core.ParseDate(start); err != nil {
		return nil, err
	}
	if end.Valid {
		if rule.EndDate, err = core.ParseDate(end.String); err != nil {
			return nil, err
		}
	}
	return &rule, nil
}

// --- execution journal ---

// ClaimExecution atomically inserts a pending execution record for the
// (rule, date) idempotency key. When the record already exists (any status)
// the existing row is returned with claimed=false; the caller must not
// create a second ledger transaction for an executed row.
func (r *SQLiteRepository) ClaimExecution(ctx context.Context, ruleID int64, date core.Date) (core.RecurringExecution, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_executions (rule_id, execution_date, status)
		VALUES (?, ?, ?)
		ON CONFLICT(rule_id, execution_date) DO NOTHING`,
		ruleID, date.String(), string(core.ExecutionPending))
	if err != nil {
		return core.RecurringExecution{}, false, fmt.Errorf("claim execution: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.RecurringExecution{}, false, fmt.Errorf("claim execution rows: %w", err)
	}

	exec, err := r.GetExecution(ctx, ruleID, date)
	if err != nil {
		return core.RecurringExecution{}, false, err
	}
	return *exec, affected == 1, nil
}

func (r *SQLiteRepository) GetExecution(ctx context.Context, ruleID int64, date core.Date) (*core.RecurringExecution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, rule_id, execution_date, transaction_id, status, error_message
		FROM recurring_executions WHERE rule_id = ? AND execution_date = ?`,
		ruleID, date.String())
	return scanExecution(row)
}

func (r *SQLiteRepository) ListExecutions(ctx context.Context, ruleID int64) ([]core.RecurringExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rule_id, execution_date, transaction_id, status, error_message
		FROM recurring_executions WHERE rule_id = ? ORDER BY execution_date`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exec)
	}
	return out, rows.Err()
}

// ExecutionDates returns every date (any status) already present in the
// journal for a rule. Used to subtract handled occurrences from candidates.
func (r *SQLiteRepository) ExecutionDates(ctx context.Context, ruleID int64) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT execution_date FROM recurring_executions WHERE rule_id = ?`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("execution dates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan execution date: %w", err)
		}
		out[d] = true
	}
	return out, rows.Err()
}

// ReclaimFailed atomically moves a failed execution back to pending so that
// exactly one caller owns the retry. Returns false when the row is no longer
// failed, i.e. a concurrent retry claimed it first or it already executed.
func (r *SQLiteRepository) ReclaimFailed(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_executions
		SET status = ?, error_message = NULL, updated_at = datetime('now')
		WHERE id = ? AND status = ?`,
		string(core.ExecutionPending), id, string(core.ExecutionFailed))
	if err != nil {
		return false, fmt.Errorf("reclaim failed execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim failed execution rows: %w", err)
	}
	return affected == 1, nil
}

// ReclaimStalePending refreshes a pending claim left behind by a worker that
// crashed between claiming and writing the ledger transaction. The update
// only wins when the claim is older than the grace period, so a live claim
// is never stolen.
func (r *SQLiteRepository) ReclaimStalePending(ctx context.Context, id int64, grace time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_executions
		SET updated_at = datetime('now')
		WHERE id = ? AND status = ? AND updated_at <= datetime('now', ?)`,
		id, string(core.ExecutionPending), fmt.Sprintf("-%d seconds", int(grace/time.Second)))
	if err != nil {
		return false, fmt.Errorf("reclaim stale claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim stale claim rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateExecution transitions an execution record. The update is conditional
// on the row still being in a status the execution state machine allows the
// transition from; a caller holding a stale view of the journal gets
// ErrIllegalTransition instead of clobbering the row.
func (r *SQLiteRepository) UpdateExecution(ctx context.Context, id int64, status core.ExecutionStatus, transactionID, errorMessage string) error {
	if err := status.Validate(); err != nil {
		return err
	}

	var from []any
	for _, s := range []core.ExecutionStatus{core.ExecutionPending, core.ExecutionExecuted, core.ExecutionFailed} {
		if s.CanTransitionTo(status) {
			from = append(from, string(s))
		}
	}
	args := append([]any{string(status), nullableString(transactionID), nullableString(errorMessage), id}, from...)

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE recurring_executions
		SET status = ?, transaction_id = ?, error_message = ?, updated_at = datetime('now')
		WHERE id = ? AND status IN (%s)`,
		strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")), args...)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update execution rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("execution %d to %s: %w", id, status, ErrIllegalTransition)
	}
	return nil
}

func scanExecution(row rowScanner) (*core.RecurringExecution, error) {
	var (
		exec   core.RecurringExecution
		date   string
		txID   sql.NullString
		status string
		errMsg sql.NullString
	)
	err := row.Scan(&exec.ID, &exec.RuleID, &date, &txID, &status, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	if exec.ExecutionDate, err = core.ParseDate(date); err != nil {
		return nil, err
	}
	exec.TransactionID = txID.String
	exec.Status = core.ExecutionStatus(status)
	exec.ErrorMessage = errMsg.String
	return &exec, nil
}

// --- budgets ---

func (r *SQLiteRepository) CreateBudget(ctx context.Context, budget core.Budget) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin budget tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO budgets (name, amount, currency, period_type, cycle_type, carry_over_enabled, carry_clamp_zero, start_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		budget.Name, budget.Amount.String(), budget.Currency,
		string(budget.PeriodType), string(budget.CycleType),
		boolToInt(budget.CarryOver), boolToInt(budget.CarryClampZero),
		budget.StartDate.String(), nullableDate(budget.EndDate), boolToInt(budget.Active))
	if err != nil {
		return 0, fmt.Errorf("insert budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("budget id: %w", err)
	}

	for _, item := range budget.Items {
		var amount, currency any
		if !item.Amount.IsZero() {
			amount = item.Amount.String()
			currency = item.Currency
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO budget_items (budget_id, account_pattern, amount, currency)
			VALUES (?, ?, ?, ?)`,
			id, item.AccountPattern, amount, currency); err != nil {
			return 0, fmt.Errorf("insert budget item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget saved",
		"id", id,
		"name", budget.Name,
		"cycle_type", budget.CycleType,
		"items", len(budget.Items))
	return id, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id int64) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, amount, currency, period_type, cycle_type, carry_over_enabled, carry_clamp_zero, start_date, end_date, is_active
		FROM budgets WHERE id = ?`, id)

	budget, err := scanBudget(row)
	if err != nil {
		return nil, err
	}
	if budget.Items, err = r.budgetItems(ctx, budget.ID); err != nil {
		return nil, err
	}
	return budget, nil
}

func (r *SQLiteRepository) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, amount, currency, period_type, cycle_type, carry_over_enabled, carry_clamp_zero, start_date, end_date, is_active
		FROM budgets WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *budget)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Items, err = r.budgetItems(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) budgetItems(ctx context.Context, budgetID int64) ([]core.BudgetItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_pattern, amount, currency
		FROM budget_items WHERE budget_id = ? ORDER BY id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("budget items: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetItem
	for rows.Next() {
		var (
			item     core.BudgetItem
			amount   sql.NullString
			currency sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.AccountPattern, &amount, &currency); err != nil {
			return nil, fmt.Errorf("scan budget item: %w", err)
		}
		if amount.Valid {
			if item.Amount, err = decimal.NewFromString(amount.String); err != nil {
				return nil, fmt.Errorf("parse item amount: %w", err)
			}
		}
		item.Currency = currency.String
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanBudget(row rowScanner) (*core.Budget, error) {
	var (
		budget               core.Budget
		amount               string
		periodType, cycle    string
		carryOver, clampZero int
		start                string
		end                  sql.NullString
		activeFlag           int
	)
	err := row.Scan(&budget.ID, &budget.Name, &amount, &budget.Currency,
		&periodType, &cycle, &carryOver, &clampZero, &start, &end, &activeFlag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan budget: %w", err)
	}

	if budget.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse budget amount: %w", err)
	}
	budget.PeriodType = core.PeriodType(periodType)
	budget.CycleType = core.CycleType(cycle)
	budget.CarryOver = carryOver != 0
	budget.CarryClampZero = clampZero != 0
	budget.Active = activeFlag != 0
	if budget.StartDate, err = core.ParseDate(start); err != nil {
		return nil, err
	}
	if end.Valid {
		if budget.EndDate, err = core.ParseDate(end.String); err != nil {
			return nil, err
		}
	}
	return &budget, nil
}

// --- budget cycles ---

// UpsertCycle writes a computed cycle row keyed on (budget_id,
// period_number). Cycles are a recomputable projection, so an existing row
// is overwritten with the fresh figures.
func (r *SQLiteRepository) UpsertCycle(ctx context.Context, cycle core.BudgetCycle) (int64, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_cycles (budget_id, period_number, period_start, period_end, base_amount, carried_over, spent_amount, partial, status, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(budget_id, period_number) DO UPDATE SET
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			base_amount = excluded.base_amount,
			carried_over = excluded.carried_over,
			spent_amount = excluded.spent_amount,
			partial = excluded.partial,
			status = excluded.status,
			computed_at = excluded.computed_at`,
		cycle.BudgetID, cycle.PeriodNumber,
		cycle.PeriodStart.String(), nullableDate(cycle.PeriodEnd),
		cycle.BaseAmount.String(), cycle.CarriedOver.String(), cycle.SpentAmount.String(),
		boolToInt(cycle.Partial), string(cycle.Status))
	if err != nil {
		return 0, fmt.Errorf("upsert cycle: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		SELECT id FROM budget_cycles WHERE budget_id = ? AND period_number = ?`,
		cycle.BudgetID, cycle.PeriodNumber).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("cycle id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListCycles(ctx context.Context, budgetID int64) ([]core.BudgetCycle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, budget_id, period_number, period_start, period_end, base_amount, carried_over, spent_amount, partial, status
		FROM budget_cycles WHERE budget_id = ? ORDER BY period_number`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetCycle
	for rows.Next() {
		var (
			c                   core.BudgetCycle
			start               string
			end                 sql.NullString
			base, carried, spnt string
			partial             int
			status              string
		)
		if err := rows.Scan(&c.ID, &c.BudgetID, &c.PeriodNumber, &start, &end,
			&base, &carried, &spnt, &partial, &status); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if c.PeriodStart, err = core.ParseDate(start); err != nil {
			return nil, err
		}
		if end.Valid {
			if c.PeriodEnd, err = core.ParseDate(end.String); err != nil {
				return nil, err
			}
		}
		if c.BaseAmount, err = decimal.NewFromString(base); err != nil {
			return nil, fmt.Errorf("parse base amount: %w", err)
		}
		if c.CarriedOver, err = decimal.NewFromString(carried); err != nil {
			return nil, fmt.Errorf("parse carried over: %w", err)
		}
		if c.SpentAmount, err = decimal.NewFromString(spnt); err != nil {
			return nil, fmt.Errorf("parse spent amount: %w", err)
		}
		c.Partial = partial != 0
		c.Status = core.CycleStatus(status)
		c.TotalAmount = c.BaseAmount.Add(c.CarriedOver)
		c.Remaining = c.TotalAmount.Sub(c.SpentAmount)
		// A non-positive total has no meaningful usage rate; leave it 0.
		if c.TotalAmount.IsPositive() {
			c.UsageRate, _ = c.SpentAmount.Div(c.TotalAmount).Float64()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- helpers ---

func nullableDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
