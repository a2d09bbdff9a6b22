package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// ErrRateUnavailable is returned by a RateProvider when no rate exists for
// a currency on a date. The aggregator treats it as degradation, not
// failure.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Posting is one ledger leg as reported by the external ledger query.
type Posting struct {
	Date     core.Date
	Account  string
	Amount   decimal.Decimal
	Currency string
}

// Ports for the external ledger collaborators.
type (
	// PostingSource answers the "postings in range" query. Implementations
	// may return a superset of the pattern; the aggregator re-filters.
	PostingSource interface {
		PostingsInRange(ctx context.Context, pattern string, start, end core.Date) ([]Posting, error)
	}

	// TransactionWriter appends a transaction to the ledger and returns
	// its identifier. A structured error means the ledger rejected the
	// entry (e.g. unknown account).
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, tx core.LedgerTransaction) (txID string, err error)
	}

	// RateProvider converts a currency into the base currency as of a
	// date. Returns ErrRateUnavailable when no rate is known.
	RateProvider interface {
		Rate(ctx context.Context, currency string, asOf core.Date) (decimal.Decimal, error)
	}
)
