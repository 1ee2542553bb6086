// Package store is the document database behind the assistant: user profile
// documents with merge-writes, per-user conversation context, a timestamped
// transaction sub-collection, and the persisted exemplar-vector cache.
package store

import (
	"context"
	"time"
)

// Document is a schemaless record body. Merge-writes combine nested maps
// recursively; any other value replaces wholesale.
type Document map[string]any

// Transaction is one financial record of a user. Read-only from the
// pipeline's perspective.
type Transaction struct {
	Type       string
	Category   string
	Amount     float64
	OccurredAt time.Time
}

const (
	TxIncome  = "income"
	TxExpense = "expense"
)

// TxQuery selects transactions newest first. Since bounds the window when
// set; Limit caps the result when positive.
type TxQuery struct {
	Since *time.Time
	Limit int
}

// ExemplarVector is one persisted exemplar embedding, positioned within its
// intent's exemplar list.
type ExemplarVector struct {
	Intent   string
	Position int
	Vector   []byte
}

// Documents is the generic document surface consumed by the profile routes
// and the orchestrator.
type Documents interface {
	GetDocument(ctx context.Context, collection, id string) (Document, bool, error)
	MergeDocument(ctx context.Context, collection, id string, fields Document) error
}

// Contexts is the per-user conversational memory. Reads and writes are
// scoped by user id; each key write is atomic and last-writer-wins.
type Contexts interface {
	SetContext(ctx context.Context, userID, key, value string) error
	GetContext(ctx context.Context, userID, key string) (string, bool, error)
	ClearContext(ctx context.Context, userID string) error
}

// Transactions reads a user's transaction sub-collection.
type Transactions interface {
	Transactions(ctx context.Context, userID string, q TxQuery) ([]Transaction, error)
}

// Profile is the subset of a user document the pipeline reads.
type Profile struct {
	Budget    float64
	HasBudget bool
	Income    float64
	HasIncome bool
	Goal      string
	RiskLevel string
}

// ProfileFromDocument extracts the pipeline's profile fields, tolerating an
// absent document.
func ProfileFromDocument(doc Document) Profile {
	var p Profile
	if doc == nil {
		return p
	}
	if v, ok := numberField(doc, "budget"); ok {
		p.Budget = v
		p.HasBudget = true
	}
	if v, ok := numberField(doc, "income"); ok {
		p.Income = v
		p.HasIncome = true
	}
	if v, ok := doc["goal"].(string); ok {
		p.Goal = v
	}
	if v, ok := doc["risk_level"].(string); ok {
		p.RiskLevel = v
	}
	return p
}

func numberField(doc Document, key string) (float64, bool) {
	switch v := doc[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
