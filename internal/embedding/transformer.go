package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// DefaultModel is the sentence encoder used by the local provider.
const DefaultModel = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"

// DefaultModelDir is where downloaded models are kept.
const DefaultModelDir = "./data/models"

const onnxFile = "model.onnx"

// TransformerEngine runs a pretrained sentence-transformers model in
// process through hugot's pure Go backend. The pipeline tokenizes,
// encodes and mean-pools each batch.
type TransformerEngine struct {
	model     string
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	dims      atomic.Int64
	fixedDims bool
	batchSize int
	logger    *slog.Logger

	mu sync.Mutex
}

// NewTransformerEngine loads cfg.Model. A model that is not a local
// directory is downloaded from the Hugging Face hub into cfg.ModelDir
// on first use.
func NewTransformerEngine(cfg Config, logger *slog.Logger) (*TransformerEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	path, err := modelPath(model, cfg.ModelDir, logger)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("embedding: hugot session: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath:    path,
		Name:         "embed",
		OnnxFilename: onnxFile,
	})
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("embedding: load %s: %w", model, err)
	}

	e := &TransformerEngine{
		model:     model,
		session:   session,
		pipeline:  pipeline,
		fixedDims: cfg.Dimensions > 0,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e, nil
}

func modelPath(model, dir string, logger *slog.Logger) (string, error) {
	if info, err := os.Stat(model); err == nil && info.IsDir() {
		return model, nil
	}
	if dir == "" {
		dir = DefaultModelDir
	}
	local := filepath.Join(dir, filepath.FromSlash(model))
	if _, err := os.Stat(filepath.Join(local, onnxFile)); err == nil {
		return local, nil
	}
	// hugot names the download after the last path element.
	local = filepath.Join(dir, filepath.Base(model))
	if _, err := os.Stat(filepath.Join(local, onnxFile)); err == nil {
		return local, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("embedding: model dir: %w", err)
	}
	logger.Info("embedding: downloading model", slog.String("model", model), slog.String("dir", dir))
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/" + onnxFile
	path, err := hugot.DownloadModel(model, dir, opts)
	if err != nil {
		return "", fmt.Errorf("embedding: download %s: %w", model, err)
	}
	return path, nil
}

// Name implements Engine.
func (e *TransformerEngine) Name() string { return "local:" + e.model }

// Dimensions implements Engine.
func (e *TransformerEngine) Dimensions() int { return int(e.dims.Load()) }

// Embed implements Engine.
func (e *TransformerEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	err := batches(texts, e.batchSize, func(batch []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vecs, err := e.run(batch)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("got %d vectors for %d texts", len(vecs), len(batch))
		}
		dims, err := checkDims(vecs, e.Dimensions())
		if err != nil {
			return err
		}
		if !e.fixedDims {
			e.dims.CompareAndSwap(0, int64(dims))
		}
		out = append(out, vecs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w", e.Name(), err)
	}
	return out, nil
}

// run serializes pipeline calls; the session is not safe for concurrent use.
func (e *TransformerEngine) run(batch []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.pipeline.RunPipeline(batch)
	if err != nil {
		return nil, err
	}
	return res.Embeddings, nil
}

// Close releases the session.
func (e *TransformerEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Destroy()
}
