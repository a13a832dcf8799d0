// Package embedding maps text to fixed-size vectors.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notemind/internal/apperr"
)

// Engine embeds a batch of texts into vectors of a single dimensionality.
type Engine interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the output size, or 0 when it is only known after
	// the first call.
	Dimensions() int
	// Name identifies the encoder; persisted vectors are tied to it.
	Name() string
}

// Provider names accepted by New.
const (
	ProviderLocal  = "local"
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderGenAI  = "genai"
)

// Defaults shared by every provider.
const (
	DefaultBatchSize  = 32
	DefaultMaxLength  = 128
	DefaultDimensions = 384
	DefaultTimeout    = 30 * time.Second
)

// Config selects and tunes an Engine.
type Config struct {
	Provider          string
	Model             string
	ModelDir          string
	BatchSize         int
	MaxLength         int
	Dimensions        int
	Timeout           time.Duration
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
}

// New builds the Engine named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case "", ProviderLocal:
		return NewTransformerEngine(cfg, logger)
	case ProviderHash:
		// Deterministic and offline; not a semantic model.
		return NewPooled(cfg.Model, NewTokenizer(cfg.MaxLength), NewHashEncoder(cfg.Dimensions), cfg.BatchSize), nil
	case ProviderOpenAI:
		return NewOpenAIEngine(cfg, logger), nil
	case ProviderGenAI:
		return NewGenAIEngine(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// checkDims verifies that every vector has dimension want. A want of 0
// adopts the size of the first vector.
func checkDims(vecs [][]float32, want int) (int, error) {
	for i, v := range vecs {
		if want == 0 {
			want = len(v)
		}
		if len(v) != want {
			return want, fmt.Errorf("embedding: vector %d has %d dimensions, want %d: %w", i, len(v), want, apperr.ErrDimensionMismatch)
		}
	}
	return want, nil
}

// batches calls fn on consecutive slices of at most size texts.
func batches(texts []string, size int, fn func(batch []string) error) error {
	if size <= 0 {
		size = DefaultBatchSize
	}
	for i := 0; i < len(texts); i += size {
		end := min(i+size, len(texts))
		if err := fn(texts[i:end]); err != nil {
			return fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}
