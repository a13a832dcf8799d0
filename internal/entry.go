// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notemind/internal/api"
	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/mcpserver"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/noteservice"
	"github.com/starford/notemind/internal/sse"
)

func isFatal(err error) bool {
	return errors.Is(err, apperr.ErrDimensionMismatch)
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.String("store_path", cfg.Store.Path()),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(sse.DefaultPendingThrottle)
	defer broker.Close()

	c, err := build(ctx, cfg, logger, index.WithPassCallback(func(st *index.Stats, err error) {
		broker.PublishPass(st, err)
	}))
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.warmUp(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	notes := c.notes(noteservice.WithNotifier(broker.PublishNoteEvent))
	apiRouter := api.NewRouter(notes, c.search, c.scheduler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if c.search.Snapshot() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"indexing"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.scheduler.Run(gCtx)
	})

	if cfg.Reindex.Watch {
		g.Go(func() error {
			err := index.Watch(gCtx, c.store.Root(), c.store.IsNote, index.DefaultDebounce, logger, func() {
				if c.scheduler.Trigger() {
					broker.PublishPending()
				}
			})
			if err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// Reindex runs one synchronization pass against the persisted index. A
// full pass also recovers from an encoder change.
func Reindex(ctx context.Context, full bool, opts ...Option) (*index.Stats, error) {
	cfg, logger, err := setup(opts)
	if err != nil {
		return nil, err
	}
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer c.close()
	return c.scheduler.Reindex(ctx, full)
}

// Nearest returns the k thoughts closest to text.
func Nearest(ctx context.Context, text string, k int, opts ...Option) ([]models.Neighbor, error) {
	c, err := ready(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer c.close()
	return c.search.Nearest(ctx, text, k)
}

// SuggestTags proposes tags for text from its nearest neighbours.
func SuggestTags(ctx context.Context, text string, opts ...Option) ([]string, error) {
	c, err := ready(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer c.close()
	return c.search.SuggestTags(ctx, text)
}

// ServeMCP serves the MCP tools over stdio until ctx is done or stdin closes.
func ServeMCP(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.warmUp(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.scheduler.Run(gCtx)
	})
	// Returning Canceled once stdin closes stops the scheduler too.
	g.Go(func() error {
		if err := mcpserver.New(c.notes(), c.search, c.scheduler).ServeStdio(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ready builds the core and publishes the persisted index. Without one it
// runs a delta pass first.
func ready(ctx context.Context, opts []Option) (*components, error) {
	cfg, logger, err := setup(opts)
	if err != nil {
		return nil, err
	}
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	restored, err := c.syncer.Restore(ctx)
	if err != nil {
		c.close()
		return nil, err
	}
	if !restored {
		if _, err := c.scheduler.Reindex(ctx, false); err != nil {
			c.close()
			return nil, err
		}
	}
	return c, nil
}
