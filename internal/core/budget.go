package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PeriodMonthly PeriodType = "MONTHLY"
	PeriodYearly  PeriodType = "YEARLY"
	PeriodCustom  PeriodType = "CUSTOM"

	CycleNone    CycleType = "NONE"
	CycleMonthly CycleType = "MONTHLY"
	CycleYearly  CycleType = "YEARLY"

	CycleStatusNormal   CycleStatus = "normal"
	CycleStatusWarning  CycleStatus = "warning"
	CycleStatusExceeded CycleStatus = "exceeded"
)

type (
	PeriodType  string
	CycleType   string
	CycleStatus string

	// BudgetItem binds an account pattern to a budget, with an optional
	// per-item allocation override.
	BudgetItem struct {
		ID             int64
		AccountPattern string
		Amount         decimal.Decimal // zero means no override
		Currency       string          // empty means budget currency
	}

	Budget struct {
		ID             int64
		Name           string
		Amount         decimal.Decimal // base allocation per cycle
		Currency       string          // base currency for aggregation
		PeriodType     PeriodType
		CycleType      CycleType
		CarryOver      bool
		CarryClampZero bool // clamp a negative carry to zero instead of propagating the deficit
		StartDate      Date
		EndDate        Date // zero means open-ended; inclusive otherwise
		Items          []BudgetItem
		Active         bool
	}

	// BudgetCycle is one bounded window of a budget's lifetime.
	// PeriodStart/PeriodEnd are half-open: [PeriodStart, PeriodEnd).
	// A zero PeriodEnd means the cycle is unbounded (CycleType NONE with
	// no budget end date).
	BudgetCycle struct {
		ID           int64
		BudgetID     int64
		PeriodNumber int // 0-based
		PeriodStart  Date
		PeriodEnd    Date
		BaseAmount   decimal.Decimal
		CarriedOver  decimal.Decimal
		TotalAmount  decimal.Decimal
		SpentAmount  decimal.Decimal
		Remaining    decimal.Decimal
		UsageRate    float64
		Partial      bool // some postings were skipped for missing rates
		Status       CycleStatus
	}

	// BudgetSummary aggregates a budget's materialized cycles.
	BudgetSummary struct {
		BudgetID       int64
		BudgetName     string
		Currency       string
		CycleCount     int
		TotalAllocated decimal.Decimal
		TotalSpent     decimal.Decimal
		TotalRemaining decimal.Decimal
		Partial        bool
		Current        *BudgetCycle // cycle containing the query date
	}
)

func (p PeriodType) Validate() error {
	switch p {
	case PeriodMonthly, PeriodYearly, PeriodCustom:
		return nil
	}
	return ErrInvalidPeriodType
}

func (c CycleType) Validate() error {
	switch c {
	case CycleNone, CycleMonthly, CycleYearly:
		return nil
	}
	return ErrInvalidCycleType
}

func (i BudgetItem) Validate() error {
	if err := ValidateAccountPattern(i.AccountPattern); err != nil {
		return err
	}
	if i.Amount.IsNegative() {
		return errors.New("budget item amount cannot be negative")
	}
	return nil
}

func (b Budget) Validate() error {
	if len(strings.TrimSpace(b.Name)) == 0 {
		return errors.New("empty budget name")
	}
	if b.Amount.IsNegative() {
		return errors.New("budget amount cannot be negative")
	}
	if strings.TrimSpace(b.Currency) == "" {
		return ErrEmptyCurrency
	}
	if err := b.PeriodType.Validate(); err != nil {
		return err
	}
	if err := b.CycleType.Validate(); err != nil {
		return err
	}
	if err := b.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate) {
		return errors.New("end date must not be before start date")
	}
	if len(b.Items) == 0 {
		return ErrNoBudgetItems
	}
	for _, item := range b.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StatusFor classifies a usage rate against the configured thresholds.
func StatusFor(usageRate, warnAt, exceedAt float64) CycleStatus {
	switch {
	case usageRate >= exceedAt:
		return CycleStatusExceeded
	case usageRate >= warnAt:
		return CycleStatusWarning
	default:
		return CycleStatusNormal
	}
}
