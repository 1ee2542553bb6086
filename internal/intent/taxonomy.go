// Package intent maps free-text user messages onto a fixed financial intent
// taxonomy by cosine similarity against exemplar embeddings.
package intent

import (
	"fmt"
	"hash/fnv"
)

type Intent string

const (
	Greeting              Intent = "greeting"
	Acknowledgment        Intent = "acknowledgment"
	BudgetQuery           Intent = "budget_query"
	SetBudget             Intent = "set_budget"
	ExpenseQuery          Intent = "expense_query"
	AddExpense            Intent = "add_expense"
	ExpenseAnalysis       Intent = "expense_analysis"
	InvestmentQuery       Intent = "investment_query"
	InvestmentPerformance Intent = "investment_performance"
	SavingsAdvice         Intent = "savings_advice"
	CreditCardQuery       Intent = "credit_card_query"
	CreditCardBenefits    Intent = "credit_card_benefits"
	BillQuery             Intent = "bill_query"
	Followup              Intent = "followup"
	Goodbye               Intent = "goodbye"
	Unknown               Intent = "unknown"
)

// Threshold is the minimum winning similarity; anything below resolves to
// Unknown.
const Threshold = 0.6

// Definition binds an intent to its exemplar phrases. Declaration order is
// significant: similarity ties resolve to the first-declared intent.
type Definition struct {
	Intent    Intent
	Exemplars []string
}

// taxonomy is the immutable intent registry. Adding an intent means adding a
// row here plus a prompt-template branch.
var taxonomy = []Definition{
	{Greeting, []string{
		"hi", "hello", "hey", "hii", "yo", "good morning",
		"good evening", "good night", "hey there", "hola",
	}},
	{Acknowledgment, []string{
		"ok", "okay", "thanks", "thank you", "got it",
		"sounds good", "great", "cool", "understood",
	}},
	{BudgetQuery, []string{
		"what's my budget", "budget status", "how much can i spend",
		"budget left", "remaining budget", "tell me my budget",
		"current budget", "month budget", "budget details",
	}},
	{SetBudget, []string{
		"set my budget", "i want to set a budget",
		"update budget", "change my budget",
		"set monthly budget", "create a budget",
	}},
	{ExpenseQuery, []string{
		"expenses", "how much did i spend", "show my spending",
		"my last transactions", "recent expenses",
		"how much did i pay", "transaction history",
	}},
	{AddExpense, []string{
		"add an expense", "record a spending", "note this expense",
		"log an expense", "i spent money", "save this expense",
	}},
	{ExpenseAnalysis, []string{
		"where did i spend most", "top spending category",
		"spending analysis", "expense breakdown",
		"spending habits", "biggest expense",
		"category-wise spending", "monthly spending analysis",
	}},
	{InvestmentQuery, []string{
		"investments", "portfolio", "sip", "mutual fund",
		"suggest me some good stocks", "where to invest",
		"investment ideas", "best investment options",
		"stock suggestions", "investment plan",
	}},
	{InvestmentPerformance, []string{
		"investment returns", "portfolio performance",
		"how are my investments doing", "profit and loss in investments",
		"investment growth",
	}},
	{SavingsAdvice, []string{
		"how to save", "reduce spending", "save more",
		"cut costs", "save money", "savings tips",
		"financial advice", "ways to save",
		"how can i save money",
	}},
	{CreditCardQuery, []string{
		"recommended credit card", "best credit card",
		"which credit card should i get", "show me credit card options",
		"credit card suggestion", "card recommendation",
	}},
	{CreditCardBenefits, []string{
		"card benefits", "what are the rewards", "reward points",
		"cashback details", "card features",
	}},
	{BillQuery, []string{
		"upcoming bills", "pending bills", "show my bills",
		"when is my bill due", "bill reminders", "due payments",
	}},
	{Followup, []string{
		"tell me more", "and what about", "can you explain",
		"more details", "can you elaborate", "what else",
		"continue", "go on",
	}},
	{Goodbye, []string{
		"bye", "goodbye", "see you", "talk to you later",
		"bye bye", "catch you later",
	}},
	{Unknown, nil},
}

// Taxonomy returns the registry in declaration order. Callers must treat the
// returned slice as read-only.
func Taxonomy() []Definition {
	return taxonomy
}

// Revision fingerprints the taxonomy content. Persisted exemplar vectors
// keyed by an older revision are stale and recomputed.
func Revision() string {
	h := fnv.New64a()
	for _, def := range taxonomy {
		_, _ = h.Write([]byte(def.Intent))
		_, _ = h.Write([]byte{0})
		for _, ex := range def.Exemplars {
			_, _ = h.Write([]byte(ex))
			_, _ = h.Write([]byte{0})
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// NeedsTransactions reports whether answering the intent requires transaction
// records.
func NeedsTransactions(it Intent) bool {
	switch it {
	case BudgetQuery, ExpenseQuery, ExpenseAnalysis, SavingsAdvice:
		return true
	}
	return false
}

// ExpenseOnly reports whether the intent consumes only expense records;
// income rows are filtered out after fetch.
func ExpenseOnly(it Intent) bool {
	switch it {
	case ExpenseQuery, ExpenseAnalysis, SavingsAdvice:
		return true
	}
	return false
}
