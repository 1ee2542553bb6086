package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthmitra/arthmitra/internal/auth"
	"github.com/arthmitra/arthmitra/internal/errs"
	"github.com/arthmitra/arthmitra/internal/intent"
	"github.com/arthmitra/arthmitra/internal/llm"
	"github.com/arthmitra/arthmitra/internal/prompt"
	"github.com/arthmitra/arthmitra/internal/store"
	"github.com/arthmitra/arthmitra/internal/timewindow"
)

// defaultWindowDays applies when the message names no time window.
const defaultWindowDays = 30

const systemPrompt = "You are a helpful financial assistant."

// helpMessage is returned verbatim for messages that resolve to no known
// intent. It never goes through the language model.
const helpMessage = "I'm not sure I understood that. I can help with your budget, " +
	"expenses, savings, investments and financial goals. " +
	"Try asking \"what's my budget\" or \"how much did I spend last month\"."

// Context store keys, one row per user per key.
const (
	ctxKeyLastIntent      = "last_intent"
	ctxKeyLastBotResponse = "last_bot_response"
)

// usersCollection is the document collection holding user profiles.
const usersCollection = "users"

// Classifier resolves free text to an intent. Satisfied by
// intent.Classifier; an interface here allows mocking in tests.
type Classifier interface {
	Classify(ctx context.Context, text string) (intent.Result, error)
}

// Options collects the collaborators an Orchestrator needs.
type Options struct {
	Verifier     auth.Verifier
	Classifier   Classifier
	Documents    store.Documents
	Contexts     store.Contexts
	Transactions store.Transactions
	LLM          llm.Client
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Orchestrator drives one message through the full pipeline.
type Orchestrator struct {
	verifier   auth.Verifier
	classifier Classifier
	docs       store.Documents
	contexts   store.Contexts
	agg        *Aggregator
	llm        llm.Client
	log        zerolog.Logger
	now        func() time.Time
}

func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		verifier:   opts.Verifier,
		classifier: opts.Classifier,
		docs:       opts.Documents,
		contexts:   opts.Contexts,
		agg:        NewAggregator(opts.Transactions, now),
		llm:        opts.LLM,
		log:        opts.Logger,
		now:        now,
	}
}

// HandleMessage authenticates the caller, resolves the intent, gathers any
// transaction data the intent needs, assembles the prompt and returns the
// generated reply. Conversation context is updated only after a successful
// reply; failures leave it untouched.
func (o *Orchestrator) HandleMessage(ctx context.Context, token, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errs.Markf(errs.ErrValidation, "empty message")
	}

	log := o.log.With().Str("request_id", uuid.NewString()).Logger()

	uid, err := o.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	log = log.With().Str("user", uid).Logger()

	res, err := o.classifier.Classify(ctx, trimmed)
	if err != nil {
		return "", err
	}
	log.Debug().Str("intent", string(res.Intent)).Float64("score", res.Score).Msg("intent classified")

	// A followup inherits the previous resolved intent for all data
	// decisions; the reply prompt still continues the prior exchange.
	resolved := res.Intent
	promptIntent := res.Intent
	if res.Intent == intent.Followup {
		prev, ok, err := o.contexts.GetContext(ctx, uid, ctxKeyLastIntent)
		if err != nil {
			return "", err
		}
		if !ok || prev == "" || prev == string(intent.Unknown) {
			resolved = intent.Unknown
		} else {
			resolved = intent.Intent(prev)
		}
	}

	if resolved == intent.Unknown {
		if err := o.rememberExchange(ctx, uid, intent.Unknown, helpMessage); err != nil {
			log.Warn().Err(err).Msg("context update after help reply failed")
		}
		return helpMessage, nil
	}

	pctx, err := o.loadContext(ctx, uid)
	if err != nil {
		return "", err
	}

	var gathered GatherResult
	if intent.NeedsTransactions(resolved) {
		days, explicit := timewindow.ExtractDays(trimmed, o.now())
		if !explicit {
			days = defaultWindowDays
		}
		gathered, err = o.agg.Gather(ctx, uid, resolved, days, explicit)
		if err != nil {
			return "", err
		}
		log.Debug().Int("window_days", days).Bool("explicit", explicit).
			Int("records", len(gathered.Records)).Msg("transactions gathered")
	}

	built := prompt.Build(promptIntent, trimmed, pctx, gathered.Records, gathered.Totals, gathered.ShortageNotice)

	reply, err := o.llm.Generate(ctx, systemPrompt, built)
	if err != nil {
		return "", err
	}

	if err := o.rememberExchange(ctx, uid, resolved, reply); err != nil {
		// The reply already exists; losing the memory of it degrades
		// followups but should not fail the request.
		log.Warn().Err(err).Msg("context update failed")
	}
	return reply, nil
}

// loadContext reads the user's profile document and prior bot response into
// the prompt context.
func (o *Orchestrator) loadContext(ctx context.Context, uid string) (prompt.Context, error) {
	var pctx prompt.Context

	doc, found, err := o.docs.GetDocument(ctx, usersCollection, uid)
	if err != nil {
		return prompt.Context{}, err
	}
	if found {
		profile := store.ProfileFromDocument(doc)
		pctx.Budget = profile.Budget
		pctx.HasBudget = profile.HasBudget
		pctx.Income = profile.Income
		pctx.HasIncome = profile.HasIncome
		pctx.Goal = profile.Goal
		pctx.RiskLevel = profile.RiskLevel
	}

	last, ok, err := o.contexts.GetContext(ctx, uid, ctxKeyLastBotResponse)
	if err != nil {
		return prompt.Context{}, err
	}
	if ok {
		pctx.LastBotResponse = last
	}
	return pctx, nil
}

func (o *Orchestrator) rememberExchange(ctx context.Context, uid string, it intent.Intent, reply string) error {
	if err := o.contexts.SetContext(ctx, uid, ctxKeyLastIntent, string(it)); err != nil {
		return err
	}
	return o.contexts.SetContext(ctx, uid, ctxKeyLastBotResponse, reply)
}
