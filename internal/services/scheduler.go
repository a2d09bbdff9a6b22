package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
	"bilancio/internal/schedule"
	"bilancio/internal/storage"
)

// A pending claim older than this is assumed to belong to a worker that
// crashed between claiming and writing the ledger, and may be reclaimed.
const defaultClaimGrace = 10 * time.Minute

// RecurringScheduler materializes recurring rules into ledger transactions.
// Execution is idempotent per (rule, date): the execution journal acts as a
// claim table, so concurrent or repeated sweeps produce at most one ledger
// transaction per occurrence.
type RecurringScheduler struct {
	storage    *storage.SQLiteRepository
	writer     ledger.TransactionWriter
	amqpClient *amqp.Client
	claimGrace time.Duration
}

func NewRecurringScheduler(storage *storage.SQLiteRepository, writer ledger.TransactionWriter, amqpClient *amqp.Client) *RecurringScheduler {
	return &RecurringScheduler{
		storage:    storage,
		writer:     writer,
		amqpClient: amqpClient,
		claimGrace: defaultClaimGrace,
	}
}

// ListDue returns the occurrence dates of a rule up to asOf that have no
// execution record yet. Failed occurrences are not re-listed; retrying a
// failure is an explicit Execute call.
func (s *RecurringScheduler) ListDue(ctx context.Context, rule core.RecurringRule, asOf core.Date) ([]core.Date, error) {
	if !rule.Active {
		return nil, core.ErrRuleInactive
	}
	if asOf.Before(rule.StartDate) {
		return nil, nil
	}

	end := asOf
	if !rule.EndDate.IsZero() && rule.EndDate.Before(end) {
		end = rule.EndDate
	}

	occurrences, err := schedule.Occurrences(rule.Frequency, rule.Config, rule.StartDate, end)
	if err != nil {
		return nil, fmt.Errorf("resolve occurrences for rule %d: %w", rule.ID, err)
	}

	handled, err := s.storage.ExecutionDates(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	var due []core.Date
	for _, d := range occurrences {
		if !handled[d.String()] {
			due = append(due, d)
		}
	}
	return due, nil
}

// Execute materializes one occurrence of a rule. The call is idempotent: if
// the occurrence was already executed the existing record is returned and no
// second ledger transaction is created. A failed record is retried. A ledger
// write failure is recorded on the journal row and reported through the
// record's status, not as an error; errors mean the journal itself could not
// be read or written.
func (s *RecurringScheduler) Execute(ctx context.Context, rule core.RecurringRule, date core.Date) (core.RecurringExecution, error) {
	if !rule.Active {
		return core.RecurringExecution{}, core.ErrRuleInactive
	}
	if err := rule.Validate(); err != nil {
		return core.RecurringExecution{}, fmt.Errorf("rule %d: %w", rule.ID, err)
	}

	exec, claimed, err := s.storage.ClaimExecution(ctx, rule.ID, date)
	if err != nil {
		return core.RecurringExecution{}, err
	}

	if !claimed {
		switch exec.Status {
		case core.ExecutionExecuted:
			slog.InfoContext(ctx, "Occurrence already executed",
				"rule_id", rule.ID,
				"date", date.String(),
				"transaction_id", exec.TransactionID)
			return exec, nil
		case core.ExecutionPending:
			reclaimed, err := s.storage.ReclaimStalePending(ctx, exec.ID, s.claimGrace)
			if err != nil {
				return core.RecurringExecution{}, err
			}
			if !reclaimed {
				// A live sweep holds the claim; let it finish.
				return exec, nil
			}
			slog.WarnContext(ctx, "Reclaimed abandoned execution claim",
				"rule_id", rule.ID,
				"date", date.String())
		case core.ExecutionFailed:
			reclaimed, err := s.storage.ReclaimFailed(ctx, exec.ID)
			if err != nil {
				return core.RecurringExecution{}, err
			}
			if !reclaimed {
				// Lost the retry race; return whatever the winner left.
				current, err := s.storage.GetExecution(ctx, rule.ID, date)
				if err != nil {
					return core.RecurringExecution{}, err
				}
				return *current, nil
			}
			slog.InfoContext(ctx, "Retrying failed occurrence",
				"rule_id", rule.ID,
				"date", date.String())
			exec.Status = core.ExecutionPending
			exec.ErrorMessage = ""
		}
	}

	txID, writeErr := s.writer.AppendTransaction(ctx, rule.Instantiate(date))
	if writeErr != nil {
		slog.ErrorContext(ctx, "Ledger rejected recurring transaction",
			"rule_id", rule.ID,
			"date", date.String(),
			"error", writeErr)
		if err := s.storage.UpdateExecution(ctx, exec.ID, core.ExecutionFailed, "", writeErr.Error()); err != nil {
			return core.RecurringExecution{}, err
		}
		exec.Status = core.ExecutionFailed
		exec.ErrorMessage = writeErr.Error()
		exec.TransactionID = ""
		s.publishEvent(ctx, exec)
		return exec, nil
	}

	if err := s.storage.UpdateExecution(ctx, exec.ID, core.ExecutionExecuted, txID, ""); err != nil {
		return core.RecurringExecution{}, err
	}
	exec.Status = core.ExecutionExecuted
	exec.TransactionID = txID
	exec.ErrorMessage = ""

	slog.InfoContext(ctx, "Executed recurring occurrence",
		log.NewFields().
			WithComponent(log.ComponentScheduler).
			WithRule(rule.ID, rule.Name).
			WithExecution(exec.ID, date.String(), string(exec.Status)).
			WithTransaction(txID).
			ToSlice()...)

	s.publishEvent(ctx, exec)
	return exec, nil
}

// ExecuteDueForRule runs every due occurrence of one rule and reports how
// many ended up executed versus failed.
func (s *RecurringScheduler) ExecuteDueForRule(ctx context.Context, rule core.RecurringRule, asOf core.Date) (executed, failed int, err error) {
	due, err := s.ListDue(ctx, rule, asOf)
	if err != nil {
		return 0, 0, err
	}
	for _, date := range due {
		exec, err := s.Execute(ctx, rule, date)
		if err != nil {
			return executed, failed, err
		}
		switch exec.Status {
		case core.ExecutionExecuted:
			executed++
		case core.ExecutionFailed:
			failed++
		}
	}
	return executed, failed, nil
}

// ExecuteAllDue sweeps every active rule up to asOf.
func (s *RecurringScheduler) ExecuteAllDue(ctx context.Context, asOf core.Date) (executed, failed int, err error) {
	rules, err := s.storage.ListActiveRules(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list active rules: %w", err)
	}

	for _, rule := range rules {
		e, f, err := s.ExecuteDueForRule(ctx, rule, asOf)
		executed += e
		failed += f
		if err != nil {
			return executed, failed, err
		}
	}

	slog.InfoContext(ctx, "Recurring sweep complete",
		"rules", len(rules),
		"executed", executed,
		"failed", failed,
		"as_of", asOf.String())
	return executed, failed, nil
}

func (s *RecurringScheduler) publishEvent(ctx context.Context, exec core.RecurringExecution) {
	if s.amqpClient == nil {
		return
	}
	msg := amqp.NewExecutionEventMessage(exec.ID, exec.RuleID,
		exec.ExecutionDate.String(), string(exec.Status), exec.TransactionID)
	if err := s.amqpClient.PublishExecutionEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish execution event",
			"execution_id", exec.ID,
			"error", err)
		// Don't fail the sweep; the journal row is the source of truth.
	}
}
