// Package pipeline sequences one incoming message through authentication,
// intent resolution, data gathering, prompt assembly and generation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/arthmitra/arthmitra/internal/intent"
	"github.com/arthmitra/arthmitra/internal/prompt"
	"github.com/arthmitra/arthmitra/internal/store"
)

// fallbackLimit caps the "most recent overall" fetch used when a defaulted
// window matches nothing.
const fallbackLimit = 100

// GatherResult is the aggregated transaction view handed to the prompt
// assembler. ShortageNotice is set only when an explicitly requested window
// came back empty; fallback never runs in that case.
type GatherResult struct {
	Records        []store.Transaction
	Totals         prompt.Totals
	ShortageNotice string
}

// Aggregator fetches and filters a user's transactions for one request.
type Aggregator struct {
	txs store.Transactions
	now func() time.Time
}

func NewAggregator(txs store.Transactions, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{txs: txs, now: now}
}

// Gather fetches records inside the trailing window, filters to expenses when
// the intent wants only those, and applies the documented empty-window
// policy: an explicit window yields a shortage notice, a defaulted window
// falls back to the newest records overall.
func (a *Aggregator) Gather(ctx context.Context, userID string, it intent.Intent, windowDays int, explicit bool) (GatherResult, error) {
	since := a.now().AddDate(0, 0, -windowDays)
	records, err := a.txs.Transactions(ctx, userID, store.TxQuery{Since: &since})
	if err != nil {
		return GatherResult{}, fmt.Errorf("gather window: %w", err)
	}

	filtered := filterForIntent(it, records)

	if len(filtered) == 0 {
		if explicit {
			return GatherResult{
				ShortageNotice: fmt.Sprintf("No transactions found in the last %d days", windowDays),
			}, nil
		}

		recent, err := a.txs.Transactions(ctx, userID, store.TxQuery{Limit: fallbackLimit})
		if err != nil {
			return GatherResult{}, fmt.Errorf("gather fallback: %w", err)
		}
		filtered = filterForIntent(it, recent)
	}

	return GatherResult{Records: filtered, Totals: sumByType(filtered)}, nil
}

// filterForIntent discards non-expense rows after the fetch, keeping the
// query index-agnostic.
func filterForIntent(it intent.Intent, records []store.Transaction) []store.Transaction {
	if !intent.ExpenseOnly(it) {
		return records
	}
	out := make([]store.Transaction, 0, len(records))
	for _, tx := range records {
		if tx.Type == store.TxExpense {
			out = append(out, tx)
		}
	}
	return out
}

func sumByType(records []store.Transaction) prompt.Totals {
	var totals prompt.Totals
	for _, tx := range records {
		switch tx.Type {
		case store.TxIncome:
			totals.Income += tx.Amount
		case store.TxExpense:
			totals.Expense += tx.Amount
		}
	}
	// A total is present only when strictly positive.
	totals.HasIncome = totals.Income > 0
	totals.HasExpense = totals.Expense > 0
	return totals
}
