package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/starford/notemind/internal/corpus"
	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/llm"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/noteservice"
	"github.com/starford/notemind/internal/search"
	"github.com/starford/notemind/internal/storage"
	"github.com/starford/notemind/internal/thought"
)

// components is the wired core shared by every entry point.
type components struct {
	cfg       *Config
	logger    *slog.Logger
	store     *storage.FS
	engine    embedding.Engine
	db        *index.DB
	search    *search.Service
	syncer    *index.Synchronizer
	scheduler *index.Scheduler
}

// setup resolves options into a config and logger.
func setup(opts []Option) (*Config, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	return app.config, logger, nil
}

// build opens the store and wires the index, search and scheduler.
// The caller must call close.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, schedOpts ...index.SchedulerOption) (*components, error) {
	if err := os.MkdirAll(cfg.Corpus.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Corpus.Path,
		storage.WithExtensions(cfg.Corpus.Extensions...),
		storage.WithSkipHandler(func(path string, err error) {
			logger.Warn("corpus: skipped", slog.String("path", path), slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	engine, err := embedding.New(ctx, cfg.Embedding.EngineConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("init embedding: %w", err)
	}
	queryEngine, err := embedding.NewCached(engine, cfg.Embedding.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init query cache: %w", err)
	}

	db, err := index.Open(cfg.Store.Path())
	if err != nil {
		closeEngine(engine, logger)
		return nil, fmt.Errorf("init index: %w", err)
	}

	extractOpts := []thought.Option{
		thought.WithGranularities(cfg.Extract.Granularities...),
		thought.WithFilter(cfg.Extract.Filter()),
		thought.WithLogger(logger),
	}
	if cfg.Summary.Enabled {
		extractOpts = append(extractOpts, thought.WithSummarizer(llm.NewSummarizer(cfg.Summary.SummarizerConfig(), logger)))
	}

	svc := search.NewService(queryEngine, queryExtractor(cfg, logger),
		search.WithNeighbours(cfg.Suggest.Neighbours),
		search.WithTagLimit(cfg.Suggest.Limit),
		search.WithStopTags(cfg.Suggest.StopTags),
	)
	syncer := index.NewSynchronizer(db,
		corpus.NewLoader(store, cfg.Corpus.MinLength, logger),
		thought.NewExtractor(extractOpts...),
		engine, svc, logger)

	schedOpts = append([]index.SchedulerOption{
		index.WithInterval(cfg.Reindex.Interval),
		index.WithCron(cfg.Reindex.Cron),
	}, schedOpts...)
	scheduler, err := index.NewScheduler(syncer, logger, schedOpts...)
	if err != nil {
		db.Close()
		closeEngine(engine, logger)
		return nil, err
	}

	return &components{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		engine:    engine,
		db:        db,
		search:    svc,
		syncer:    syncer,
		scheduler: scheduler,
	}, nil
}

// queryExtractor splits queries like documents but never summarizes them.
func queryExtractor(cfg *Config, logger *slog.Logger) *thought.Extractor {
	granularities := slices.DeleteFunc(slices.Clone(cfg.Extract.Granularities), func(g models.Granularity) bool {
		return g == models.GranularitySummary
	})
	return thought.NewExtractor(
		thought.WithGranularities(granularities...),
		thought.WithFilter(cfg.Extract.Filter()),
		thought.WithLogger(logger),
	)
}

// warmUp publishes the persisted index, then brings it up to date with the
// corpus. Only an encoder mismatch is fatal.
func (c *components) warmUp(ctx context.Context) error {
	restored, err := c.syncer.Restore(ctx)
	if err != nil {
		return err
	}
	if _, err := c.scheduler.Reindex(ctx, false); err != nil {
		if errors.Is(err, context.Canceled) || isFatal(err) {
			return err
		}
		if !restored {
			c.logger.Warn("initial sync failed, serving an empty index", slog.String("error", err.Error()))
		} else {
			c.logger.Warn("initial sync failed, serving the persisted index", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *components) notes(opts ...noteservice.Option) *noteservice.Service {
	return noteservice.NewService(c.store, c.scheduler, opts...)
}

func (c *components) close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index", slog.String("error", err.Error()))
	}
	closeEngine(c.engine, c.logger)
}

// closeEngine releases in-process model sessions.
func closeEngine(engine embedding.Engine, logger *slog.Logger) {
	closer, ok := engine.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("close embedding", slog.String("error", err.Error()))
	}
}
