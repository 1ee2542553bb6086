// Package gateway wires the assistant together: the HTTP surface, the
// message pipeline, the exemplar-vector bootstrap and the retention sweep.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthmitra/arthmitra/internal/auth"
	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/cron"
	"github.com/arthmitra/arthmitra/internal/embedding"
	"github.com/arthmitra/arthmitra/internal/intent"
	"github.com/arthmitra/arthmitra/internal/llm"
	"github.com/arthmitra/arthmitra/internal/logging"
	"github.com/arthmitra/arthmitra/internal/pipeline"
	"github.com/arthmitra/arthmitra/internal/store"
)

// Options allows injecting collaborators in tests.
type Options struct {
	Verifier   auth.Verifier
	Embedder   embedding.Embedder
	LLM        llm.Client
	SignalChan chan os.Signal
}

type Gateway struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      *store.SQLite
	verifier   auth.Verifier
	orch       *pipeline.Orchestrator
	retention  *cron.Service
	httpServer *http.Server
	signalChan chan os.Signal
}

// New builds a Gateway with the default collaborators.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions builds a Gateway, taking any injected collaborators from
// opts. The exemplar index is loaded from the store when a compatible
// snapshot exists, otherwise computed through the embedder and persisted.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	log := logging.New(cfg.Logging.Level)

	st, err := store.OpenSQLite(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	g := &Gateway{
		cfg:        cfg,
		log:        log,
		store:      st,
		signalChan: opts.SignalChan,
	}

	g.verifier = opts.Verifier
	if g.verifier == nil {
		g.verifier = auth.NewHTTPVerifier(cfg.Auth)
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder = embedding.NewClient(cfg.Embedding, logging.Component(log, "embedding"))
	}

	generator := opts.LLM
	if generator == nil {
		generator = llm.NewClient(cfg.LLM, logging.Component(log, "llm"))
	}

	index, err := EnsureExemplarIndex(context.Background(), st, embedder, cfg.Embedding.Model, logging.Component(log, "intent"))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("exemplar index: %w", err)
	}

	g.orch = pipeline.New(pipeline.Options{
		Verifier:     g.verifier,
		Classifier:   intent.NewClassifier(embedder, index),
		Documents:    st,
		Contexts:     st,
		Transactions: st,
		LLM:          generator,
		Logger:       logging.Component(log, "pipeline"),
	})

	g.retention = cron.NewService(cfg.Retention, st, logging.Component(log, "retention"))

	g.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)),
		Handler:      g.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	return g, nil
}

// EnsureExemplarIndex returns a classification-ready exemplar index. A
// persisted snapshot is reused only when both the embedding model and the
// taxonomy revision match; anything else triggers a fresh embed and save.
func EnsureExemplarIndex(ctx context.Context, st *store.SQLite, embedder embedding.Embedder, model string, log zerolog.Logger) (*intent.ExemplarIndex, error) {
	revision := intent.Revision()

	rows, err := st.LoadExemplarVectors(ctx, model, revision)
	if err != nil {
		return nil, fmt.Errorf("load exemplar vectors: %w", err)
	}
	if len(rows) > 0 {
		index, err := indexFromRows(rows)
		if err == nil {
			log.Debug().Str("model", model).Str("revision", revision).Msg("exemplar index loaded from store")
			return index, nil
		}
		log.Warn().Err(err).Msg("persisted exemplar vectors unusable, recomputing")
	}

	index, err := intent.BuildIndex(ctx, embedder)
	if err != nil {
		return nil, fmt.Errorf("build exemplar index: %w", err)
	}

	saved, err := rowsFromIndex(index)
	if err != nil {
		return nil, fmt.Errorf("encode exemplar vectors: %w", err)
	}
	if err := st.SaveExemplarVectors(ctx, model, revision, saved); err != nil {
		return nil, fmt.Errorf("save exemplar vectors: %w", err)
	}
	log.Info().Str("model", model).Str("revision", revision).Int("vectors", len(saved)).
		Msg("exemplar index computed and persisted")
	return index, nil
}

func indexFromRows(rows []store.ExemplarVector) (*intent.ExemplarIndex, error) {
	vectors := make(map[intent.Intent][][]float32)
	for _, row := range rows {
		vec, err := embedding.DecodeVector(row.Vector)
		if err != nil {
			return nil, fmt.Errorf("exemplar %s/%d: %w", row.Intent, row.Position, err)
		}
		vectors[intent.Intent(row.Intent)] = append(vectors[intent.Intent(row.Intent)], vec)
	}
	return intent.IndexFromVectors(vectors)
}

func rowsFromIndex(index *intent.ExemplarIndex) ([]store.ExemplarVector, error) {
	var rows []store.ExemplarVector
	for it, vecs := range index.Vectors() {
		for pos, vec := range vecs {
			blob, err := embedding.EncodeVector(vec)
			if err != nil {
				return nil, fmt.Errorf("exemplar %s/%d: %w", it, pos, err)
			}
			rows = append(rows, store.ExemplarVector{Intent: string(it), Position: pos, Vector: blob})
		}
	}
	return rows, nil
}

// Run serves HTTP until a termination signal or a listener failure, then
// shuts down cleanly.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.retention.Start(ctx); err != nil {
		return fmt.Errorf("start retention: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	g.log.Info().Str("addr", g.httpServer.Addr).Msg("gateway listening")

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case err := <-errCh:
		g.shutdown()
		return fmt.Errorf("serve: %w", err)
	case <-sigCh:
	case <-ctx.Done():
	}

	g.log.Info().Msg("shutting down")
	return g.shutdown()
}

func (g *Gateway) shutdown() error {
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if err := g.httpServer.Shutdown(shutCtx); err != nil {
		firstErr = err
	}
	g.retention.Stop()
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
