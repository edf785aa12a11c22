package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/ai/gemini"
	"github.com/spigell/talent-radar/internal/dispatcher"
	"github.com/spigell/talent-radar/internal/filtering"
	"github.com/spigell/talent-radar/internal/ingest"
	"github.com/spigell/talent-radar/internal/logger"
	"github.com/spigell/talent-radar/internal/matching"
	"github.com/spigell/talent-radar/internal/ranker"
	"github.com/spigell/talent-radar/internal/secrets"
	"github.com/spigell/talent-radar/internal/signals"
	"github.com/spigell/talent-radar/internal/store/sqlite"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

// engine holds the wired components shared by the commands.
type engine struct {
	config  *Config
	logger  *zap.Logger
	store   *sqlite.Store
	index   vectorindex.Index
	signals *signals.Engine
	matcher *matching.Service
}

// setup builds the logger and reads the config, exiting on failure like every command does.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

// newEngine opens the store, loads the index and the published signals and
// builds the match service.
func newEngine(ctx context.Context, config *Config, logger *zap.Logger, skipApplied bool) (*engine, error) {
	store, err := sqlite.Open(ctx, config.Database.Path)
	if err != nil {
		return nil, err
	}

	e := &engine{config: config, logger: logger, store: store}
	if err := e.load(ctx, skipApplied); err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

func (e *engine) load(ctx context.Context, skipApplied bool) error {
	idx, err := vectorindex.New(e.config.Index.Config)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	entries, err := e.store.JobEntries(ctx, time.Now())
	if err != nil {
		return err
	}
	skipped := vectorindex.Load(idx, entries, e.logger.Named("index"))
	e.index = idx
	e.logger.Info("index loaded",
		zap.String("strategy", e.config.Index.Strategy),
		zap.Int("jobs", idx.Len()),
		zap.Int("skipped", len(skipped)),
		zap.Int("dimension", idx.Dimension()),
	)

	e.signals, err = signals.NewEngine(e.config.Signals, signals.Deps{
		Counter: e.store,
		Writer:  e.store,
		Reader:  e.store,
		Logger:  e.logger.Named("signals"),
	})
	if err != nil {
		return fmt.Errorf("building signal engine: %w", err)
	}
	loaded, err := e.signals.Load(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("company signals loaded", zap.Int("companies", loaded))

	rank, err := ranker.New(e.config.Ranker)
	if err != nil {
		return err
	}

	filters := filtering.Default()
	filterConfig := e.config.Filters
	if !skipApplied {
		filtering.DisableByName(filters, "applied_history", "disabled by flag")
	}

	e.matcher, err = matching.NewService(matching.Deps{
		Embeddings:   e.store,
		Index:        idx,
		Jobs:         e.store,
		Board:        e.signals.Board(),
		Ranker:       rank,
		Filters:      filters,
		FilterConfig: &filterConfig,
		History:      e.store,
		Logger:       e.logger.Named("matching"),
	})
	if err != nil {
		return fmt.Errorf("building match service: %w", err)
	}
	return nil
}

// syncIndex expires stale postings and brings the in-memory index in line with
// the stored job vectors, picking up jobs ingested by other processes.
func (e *engine) syncIndex(ctx context.Context, now time.Time) (vectorindex.SyncResult, error) {
	if _, err := e.store.ExpireJobs(ctx, now); err != nil {
		return vectorindex.SyncResult{}, fmt.Errorf("expiring jobs: %w", err)
	}
	entries, err := e.store.JobEntries(ctx, now)
	if err != nil {
		return vectorindex.SyncResult{}, err
	}
	return vectorindex.Sync(e.index, entries, e.logger.Named("index")), nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

// newDispatcher builds the digest dispatcher with the configured sink.
func (e *engine) newDispatcher() (*dispatcher.Dispatcher, error) {
	var sink dispatcher.Sink
	switch strings.ToLower(strings.TrimSpace(e.config.Notify.Sink)) {
	case "", "store":
		sink = e.store
	case "log":
		sink = dispatcher.LogSink{Logger: e.logger.Named("notify"), MaxLogLength: e.config.Notify.MaxLogLength}
	default:
		return nil, fmt.Errorf("unknown notification sink %q", e.config.Notify.Sink)
	}

	return dispatcher.New(e.config.Digest, dispatcher.Deps{
		Candidates: e.store,
		Matcher:    e.matcher,
		Dedupe:     e.store,
		Sink:       sink,
		Logger:     e.logger.Named("digest"),
	})
}

// newIngester builds the ingestion service backed by the Gemini embedder.
func (e *engine) newIngester(ctx context.Context) (*ingest.Service, error) {
	if e.config.AI != nil && e.config.AI.Gemini != nil && e.config.AI.Gemini.Dimension != e.index.Dimension() {
		return nil, fmt.Errorf("embedding dimension %d does not match index dimension %d",
			e.config.AI.Gemini.Dimension, e.index.Dimension())
	}

	embedder, err := newEmbedder(ctx, e.config.AI, e.logger)
	if err != nil {
		return nil, err
	}

	return ingest.New(ingest.Deps{
		Store:    e.store,
		Embedder: embedder,
		Index:    e.index,
		Logger:   e.logger.Named("ingest"),
	})
}

func newEmbedder(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*gemini.Embedder, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required to embed texts")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	gcfg := cfg.Gemini.Config
	gcfg.APIKey = apiKey

	return gemini.NewEmbedder(ctx, gcfg, logger.With(zap.Int("ai_retry_attempts", gcfg.MaxRetries)))
}
