package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
)

// LastDayOfMonth is the sentinel month-day meaning "last calendar day".
const LastDayOfMonth = -1

type (
	Frequency string

	Date struct {
		time.Time
	}

	// FrequencyConfig carries the per-frequency schedule parameters.
	// Weekdays are ISO (1=Monday .. 7=Sunday) and apply to weekly/biweekly.
	// MonthDays apply to monthly and yearly; LastDayOfMonth is allowed.
	// Months (1-12) apply to yearly only.
	FrequencyConfig struct {
		Weekdays  []int `json:"weekdays,omitempty"`
		MonthDays []int `json:"month_days,omitempty"`
		Months    []int `json:"months,omitempty"`
	}

	// Posting is one leg of a double-entry transaction.
	Posting struct {
		Account  string          `json:"account"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}

	// TransactionTemplate is instantiated with a concrete date when a
	// recurring rule fires.
	TransactionTemplate struct {
		Description string    `json:"description"`
		Payee       string    `json:"payee,omitempty"`
		Postings    []Posting `json:"postings"`
		Tags        []string  `json:"tags,omitempty"`
	}

	// LedgerTransaction is a template instantiated for a specific date,
	// ready to hand to the ledger-write collaborator.
	LedgerTransaction struct {
		Date        Date
		Description string
		Payee       string
		Postings    []Posting
		Tags        []string
	}

	RecurringRule struct {
		ID        int64
		Name      string
		Frequency Frequency
		Config    FrequencyConfig
		Template  TransactionTemplate
		StartDate Date
		EndDate   Date // zero means open-ended; inclusive otherwise
		Active    bool
	}
)

var (
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidWeekday    = errors.New("invalid weekday")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrEmptyDescription  = errors.New("empty description")
	ErrNoPostings        = errors.New("template has no postings")
	ErrUnbalanced        = errors.New("postings do not balance to zero")
	ErrEmptyAccount      = errors.New("empty account")
	ErrEmptyCurrency     = errors.New("empty currency")
	ErrRuleInactive      = errors.New("rule is inactive")
	ErrBudgetInactive    = errors.New("budget is inactive")
	ErrNoBudgetItems     = errors.New("budget has no items")
	ErrInvalidPeriodType = errors.New("invalid period type")
	ErrInvalidCycleType  = errors.New("invalid cycle type")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// ISOWeekday returns the ISO weekday, 1=Monday .. 7=Sunday.
func (d Date) ISOWeekday() int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Equal reports whether d and other are the same calendar date.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (p Posting) Validate() error {
	if strings.TrimSpace(p.Account) == "" {
		return ErrEmptyAccount
	}
	if err := ValidateAccountName(p.Account); err != nil {
		return err
	}
	if strings.TrimSpace(p.Currency) == "" {
		return ErrEmptyCurrency
	}
	if p.Amount.IsZero() {
		return errors.New("posting amount cannot be zero")
	}
	return nil
}

// Validate checks the template, including the double-entry invariant:
// for every currency the signed posting amounts must sum to zero.
func (t TransactionTemplate) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if len(t.Postings) == 0 {
		return ErrNoPostings
	}
	sums := make(map[string]decimal.Decimal)
	for i, p := range t.Postings {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("posting %d: %w", i, err)
		}
		sums[p.Currency] = sums[p.Currency].Add(p.Amount)
	}
	for currency, sum := range sums {
		if !sum.IsZero() {
			return fmt.Errorf("%w: %s off by %s", ErrUnbalanced, currency, sum)
		}
	}
	return nil
}

// Validate checks the frequency configuration against its frequency type.
func (c FrequencyConfig) Validate(freq Frequency) error {
	switch freq {
	case Daily:
		return nil
	case Weekly, Biweekly:
		if len(c.Weekdays) == 0 {
			return errors.New("weekly rule needs at least one weekday")
		}
		for _, wd := range c.Weekdays {
			if wd < 1 || wd > 7 {
				return fmt.Errorf("%w: %d", ErrInvalidWeekday, wd)
			}
		}
		return nil
	case Monthly:
		return validateMonthDays(c.MonthDays)
	case Yearly:
		if len(c.Months) == 0 {
			return errors.New("yearly rule needs at least one month")
		}
		for _, m := range c.Months {
			if m < 1 || m > 12 {
				return fmt.Errorf("%w: %d", ErrInvalidMonth, m)
			}
		}
		return validateMonthDays(c.MonthDays)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFrequency, freq)
	}
}

func validateMonthDays(days []int) error {
	if len(days) == 0 {
		return errors.New("rule needs at least one month day")
	}
	for _, d := range days {
		if d == LastDayOfMonth {
			continue
		}
		if d < 1 || d > 31 {
			return fmt.Errorf("%w: %d", ErrInvalidDay, d)
		}
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if len(strings.TrimSpace(r.Name)) == 0 {
		return errors.New("empty rule name")
	}
	if err := r.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !r.EndDate.IsZero() {
		if r.EndDate.Before(r.StartDate) {
			return errors.New("end date must not be before start date")
		}
	}
	if err := r.Config.Validate(r.Frequency); err != nil {
		return err
	}
	return r.Template.Validate()
}

// Instantiate fills the template with a concrete date.
func (r RecurringRule) Instantiate(date Date) LedgerTransaction {
	postings := make([]Posting, len(r.Template.Postings))
	copy(postings, r.Template.Postings)
	return LedgerTransaction{
		Date:        date,
		Description: r.Template.Description,
		Payee:       r.Template.Payee,
		Postings:    postings,
		Tags:        append([]string(nil), r.Template.Tags...),
	}
}
