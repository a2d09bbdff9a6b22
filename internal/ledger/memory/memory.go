// Package memory provides an in-memory ledger backend for tests and for
// running the workers without an external ledger service.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// Ledger is a thread-safe in-memory implementation of the ledger ports.
type Ledger struct {
	mu           sync.Mutex
	postings     []ledger.Posting
	transactions []core.LedgerTransaction
	knownAccount map[string]bool // nil means accept any account
}

func New() *Ledger {
	return &Ledger{}
}

// RestrictAccounts makes AppendTransaction reject postings whose account is
// not in the given set, mimicking a ledger that validates account names.
func (l *Ledger) RestrictAccounts(accounts ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.knownAccount = make(map[string]bool, len(accounts))
	for _, a := range accounts {
		l.knownAccount[a] = true
	}
}

// AddPosting seeds a posting directly, bypassing transaction bookkeeping.
func (l *Ledger) AddPosting(date core.Date, account string, amount decimal.Decimal, currency string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.postings = append(l.postings, ledger.Posting{
		Date:     date,
		Account:  account,
		Amount:   amount,
		Currency: currency,
	})
}

// AppendTransaction implements ledger.TransactionWriter.
func (l *Ledger) AppendTransaction(_ context.Context, tx core.LedgerTransaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.knownAccount != nil {
		for _, p := range tx.Postings {
			if !l.knownAccount[p.Account] {
				return "", fmt.Errorf("unknown account %q", p.Account)
			}
		}
	}

	l.transactions = append(l.transactions, tx)
	for _, p := range tx.Postings {
		l.postings = append(l.postings, ledger.Posting{
			Date:     tx.Date,
			Account:  p.Account,
			Amount:   p.Amount,
			Currency: p.Currency,
		})
	}
	return fmt.Sprintf("mem:%d", len(l.transactions)), nil
}

// PostingsInRange implements ledger.PostingSource.
func (l *Ledger) PostingsInRange(_ context.Context, pattern string, start, end core.Date) ([]ledger.Posting, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ledger.Posting
	for _, p := range l.postings {
		if !core.MatchesPattern(pattern, p.Account) {
			continue
		}
		if p.Date.Before(start) || !p.Date.Before(end) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Transactions returns a copy of all appended transactions.
func (l *Ledger) Transactions() []core.LedgerTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.LedgerTransaction(nil), l.transactions...)
}

// FixedRates is a date-insensitive ledger.RateProvider backed by a map of
// currency to rate.
type FixedRates struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	calls int
}

func NewFixedRates(rates map[string]decimal.Decimal) *FixedRates {
	cp := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &FixedRates{rates: cp}
}

func (f *FixedRates) Rate(_ context.Context, currency string, _ core.Date) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rate, ok := f.rates[currency]
	if !ok {
		return decimal.Zero, ledger.ErrRateUnavailable
	}
	return rate, nil
}

// Calls reports how many lookups were made, cached or not.
func (f *FixedRates) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
