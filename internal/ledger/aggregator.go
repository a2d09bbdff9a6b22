package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// Result is the outcome of an aggregation. Partial is set when postings had
// to be skipped because no exchange rate was available; the total is then a
// lower bound and callers decide whether that is acceptable.
type Result struct {
	Total   decimal.Decimal
	Partial bool
	Skipped int
}

// Aggregate sums the absolute value of every posting matching the account
// pattern in the half-open window [start, end), converted into the base
// currency via the rate provider.
func Aggregate(ctx context.Context, src PostingSource, rates RateProvider, pattern string, start, end core.Date, baseCurrency string) (Result, error) {
	res := Result{Total: decimal.Zero}

	postings, err := src.PostingsInRange(ctx, pattern, start, end)
	if err != nil {
		return res, fmt.Errorf("postings in range: %w", err)
	}

	for _, p := range postings {
		if !core.MatchesPattern(pattern, p.Account) {
			continue
		}
		if p.Date.Before(start) || !p.Date.Before(end) {
			continue
		}

		amount := p.Amount.Abs()
		if p.Currency != baseCurrency {
			rate, err := rates.Rate(ctx, p.Currency, p.Date)
			if err != nil {
				if errors.Is(err, ErrRateUnavailable) {
					res.Partial = true
					res.Skipped++
					slog.WarnContext(ctx, "Skipping posting without exchange rate",
						"account", p.Account,
						"currency", p.Currency,
						"date", p.Date.String(),
						"base_currency", baseCurrency)
					continue
				}
				return res, fmt.Errorf("rate %s as of %s: %w", p.Currency, p.Date, err)
			}
			amount = amount.Mul(rate)
		}
		res.Total = res.Total.Add(amount)
	}

	return res, nil
}
