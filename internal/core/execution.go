package core

import "fmt"

const (
	ExecutionPending  ExecutionStatus = "pending"
	ExecutionExecuted ExecutionStatus = "executed"
	ExecutionFailed   ExecutionStatus = "failed"
)

type ExecutionStatus string

// RecurringExecution is one row of a rule's execution journal. The pair
// (RuleID, ExecutionDate) is the idempotency key: at most one record exists
// per pair, enforced by a unique constraint in storage.
type RecurringExecution struct {
	ID            int64
	RuleID        int64
	ExecutionDate Date
	TransactionID string // set only when Status is executed
	Status        ExecutionStatus
	ErrorMessage  string
}

// CanTransitionTo reports whether the status change is a legal move in the
// execution state machine: pending -> executed, pending -> failed, and from
// failed back to pending (retry claim), executed, or failed. Executed is
// terminal.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionExecuted || next == ExecutionFailed
	case ExecutionFailed:
		return next == ExecutionPending || next == ExecutionExecuted || next == ExecutionFailed
	default:
		return false
	}
}

func (s ExecutionStatus) Validate() error {
	switch s {
	case ExecutionPending, ExecutionExecuted, ExecutionFailed:
		return nil
	}
	return fmt.Errorf("unknown execution status: %s", s)
}
