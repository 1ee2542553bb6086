// Package prompt renders the text sent to the language model. Build is a
// pure function: identical inputs produce byte-identical output.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arthmitra/arthmitra/internal/intent"
	"github.com/arthmitra/arthmitra/internal/store"
)

// Preamble opens every prompt, fixing the assistant's persona and locale.
const Preamble = "You are a helpful Indian financial assistant.\n"

const currencySymbol = "₹"

// Context carries the profile and conversational fields the templates read.
type Context struct {
	Budget          float64
	HasBudget       bool
	Income          float64
	HasIncome       bool
	RiskLevel       string
	Goal            string
	LastBotResponse string
}

// Totals are the by-type sums over the gathered records. A total is present
// only when strictly positive, which distinguishes "no income data" from
// "zero income".
type Totals struct {
	Income     float64
	HasIncome  bool
	Expense    float64
	HasExpense bool
}

// Build assembles the prompt for one request. ShortageNotice, when set for
// an expense-flavored intent, preempts every other branch.
func Build(it intent.Intent, userText string, pctx Context, records []store.Transaction, totals Totals, shortageNotice string) string {
	parts := []string{Preamble}

	if shortageNotice != "" && intent.ExpenseOnly(it) {
		parts = append(parts, fmt.Sprintf(
			"User asked: %s\n%s.\nRespond accordingly. Provide a general helpful financial response.",
			userText, shortageNotice))
		return strings.Join(parts, "\n")
	}

	switch it {
	case intent.BudgetQuery:
		var spent float64
		for _, tx := range records {
			spent += tx.Amount
		}
		balance := pctx.Budget - spent
		parts = append(parts, fmt.Sprintf(
			"User's monthly budget is %s, spent %s, balance %s.\nProvide a direct budget status update.",
			amount(pctx.Budget), amount(spent), amount(balance)))

	case intent.ExpenseQuery:
		section := fmt.Sprintf("User asked about expenses.\nTransactions:\n%s", listRecords(records))
		if totals.HasExpense {
			section += fmt.Sprintf("\nTotal spent: %s.", amount(totals.Expense))
		}
		parts = append(parts, section+"\nProvide a clear expense summary.")

	case intent.ExpenseAnalysis:
		parts = append(parts, fmt.Sprintf(
			"User wants expense analysis.\nTransactions:\n%s\nState the top spending category, amount, and percentage of total.",
			listRecords(records)))

	case intent.InvestmentQuery:
		parts = append(parts, fmt.Sprintf(
			"User income: %s, risk: %s, goal: %s.\nProvide practical investment recommendations.",
			incomeField(pctx), orUnknown(pctx.RiskLevel), orUnknown(pctx.Goal)))

	case intent.SavingsAdvice:
		parts = append(parts, fmt.Sprintf(
			"User asked for savings advice.\nTransactions:\n%s\nProvide actionable, realistic savings tips.",
			listRecords(records)))

	case intent.Followup:
		parts = append(parts, fmt.Sprintf(
			"Follow-up query: %s.\nPrevious bot response: %s.\nContinue the conversation helpfully.",
			userText, pctx.LastBotResponse))

	default:
		parts = append(parts, fmt.Sprintf(
			"User asked: %s. Provide a helpful, direct response.", userText))
	}

	return strings.Join(parts, "\n")
}

func listRecords(records []store.Transaction) string {
	lines := make([]string, len(records))
	for i, tx := range records {
		lines[i] = fmt.Sprintf("- %s: %s", tx.Category, amount(tx.Amount))
	}
	return strings.Join(lines, "\n")
}

// amount renders a monetary value with the currency symbol and no forced
// rounding: the numeric value passes through as given upstream.
func amount(v float64) string {
	return currencySymbol + strconv.FormatFloat(v, 'f', -1, 64)
}

func incomeField(pctx Context) string {
	if !pctx.HasIncome {
		return "unknown"
	}
	return amount(pctx.Income)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
