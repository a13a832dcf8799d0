package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEngine embeds through the OpenAI embeddings API or any compatible
// server (set BaseURL). Every request is bounded by the configured timeout
// and retried with exponential backoff only on HTTP 429.
type OpenAIEngine struct {
	client    openai.Client
	model     string
	dims      atomic.Int64
	fixedDims bool
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewOpenAIEngine creates an OpenAIEngine from cfg. When cfg.Dimensions is
// set it is sent as the requested output size.
func NewOpenAIEngine(cfg Config, logger *slog.Logger) *OpenAIEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	e := &OpenAIEngine{
		client:    openai.NewClient(opts...),
		model:     model,
		fixedDims: cfg.Dimensions > 0,
		batchSize: cfg.BatchSize,
		timeout:   timeout,
		limiter:   newLimiter(cfg.RequestsPerSecond),
		logger:    logger,
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e
}

// Name implements Engine.
func (e *OpenAIEngine) Name() string { return "openai:" + e.model }

// Dimensions implements Engine.
func (e *OpenAIEngine) Dimensions() int { return int(e.dims.Load()) }

// Embed implements Engine.
func (e *OpenAIEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	err := batches(texts, e.batchSize, func(batch []string) error {
		vecs, err := e.embedBatch(ctx, batch)
		if err != nil {
			return err
		}
		dims, err := checkDims(vecs, e.Dimensions())
		if err != nil {
			return err
		}
		e.dims.CompareAndSwap(0, int64(dims))
		out = append(out, vecs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w", e.Name(), err)
	}
	return out, nil
}

func (e *OpenAIEngine) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.fixedDims {
		params.Dimensions = openai.Int(int64(e.Dimensions()))
	}

	var vecs [][]float32
	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			if isOpenAIRateLimit(err) {
				e.logger.Warn("embedding: rate limited, retrying", slog.String("model", e.model))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}
		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		vecs = make([][]float32, len(data))
		for i, d := range data {
			vecs[i] = toFloat32(d.Embedding)
		}
		return nil
	}
	if err := backoff.Retry(operation, retryPolicy(ctx, e.timeout)); err != nil {
		return nil, err
	}
	return vecs, nil
}

func isOpenAIRateLimit(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// retryPolicy bounds the total time spent retrying one request.
func retryPolicy(ctx context.Context, timeout time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * timeout
	return backoff.WithContext(b, ctx)
}

// newLimiter returns an unlimited limiter for a non-positive rate.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
