package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultGenAIModel is used when no model is configured.
const DefaultGenAIModel = "gemini-embedding-001"

// GenAIEngine embeds through the Gemini API.
type GenAIEngine struct {
	client    *genai.Client
	model     string
	dims      atomic.Int64
	fixedDims bool
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewGenAIEngine creates a GenAIEngine. The API key falls back to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
func NewGenAIEngine(ctx context.Context, cfg Config, logger *slog.Logger) (*GenAIEngine, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("embedding: genai client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGenAIModel
	}
	e := &GenAIEngine{
		client:    client,
		model:     model,
		fixedDims: cfg.Dimensions > 0,
		batchSize: cfg.BatchSize,
		timeout:   timeout,
		limiter:   newLimiter(cfg.RequestsPerSecond),
		logger:    logger,
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e, nil
}

// Name implements Engine.
func (e *GenAIEngine) Name() string { return "genai:" + e.model }

// Dimensions implements Engine.
func (e *GenAIEngine) Dimensions() int { return int(e.dims.Load()) }

// Embed implements Engine.
func (e *GenAIEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *GenAIEngine) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.fixedDims {
		cfg.OutputDimensionality = genai.Ptr(int32(e.Dimensions()))
	}

	var vecs [][]float32
	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		result, err := e.client.Models.EmbedContent(reqCtx, e.model, contents, cfg)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				e.logger.Warn("embedding: rate limited, retrying", slog.String("model", e.model))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(result.Embeddings) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(result.Embeddings), len(texts)))
		}
		vecs = make([][]float32, len(result.Embeddings))
		for i, emb := range result.Embeddings {
			vecs[i] = emb.Values
		}
		return nil
	}
	if err := backoff.Retry(operation, retryPolicy(ctx, e.timeout)); err != nil {
		return nil, err
	}
	return vecs, nil
}
