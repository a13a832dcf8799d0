package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notemind/internal/corpus"
	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/llm"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/search"
	"github.com/starford/notemind/internal/thought"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Corpus    CorpusConfig      `yaml:"corpus"`
	Extract   ExtractConfig     `yaml:"extract"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Summary   SummaryConfig     `yaml:"summary"`
	Store     StoreConfig       `yaml:"store"`
	Reindex   ReindexConfig     `yaml:"reindex"`
	Suggest   SuggestConfig     `yaml:"suggest"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []validation.Validatable{
		&c.App, &c.Corpus, &c.Extract, &c.Embedding, &c.Summary, &c.Store, &c.Reindex, &c.Suggest, &c.Auth,
	}
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig locates the notes.
type CorpusConfig struct {
	Path       string   `yaml:"path"`
	MinLength  int      `yaml:"min_length"`
	Extensions []string `yaml:"extensions"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MinLength, validation.Min(0)),
		validation.Field(&c.Extensions, validation.Required),
	)
}

// ExtractConfig selects thought granularities and filter thresholds.
type ExtractConfig struct {
	Granularities []models.Granularity `yaml:"granularities"`
	MinLetters    int                  `yaml:"min_letters"`
	MinWords      int                  `yaml:"min_words"`
}

// Validate validates the extraction configuration.
func (c *ExtractConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Granularities, validation.Required, validation.Each(validation.By(func(v any) error {
			if g, _ := v.(models.Granularity); !g.Valid() {
				return fmt.Errorf("unknown granularity %q", v)
			}
			return nil
		}))),
		validation.Field(&c.MinLetters, validation.Min(0)),
		validation.Field(&c.MinWords, validation.Min(0)),
	)
}

// Filter returns the thought filter thresholds.
func (c *ExtractConfig) Filter() thought.Filter {
	return thought.Filter{MinLetters: c.MinLetters, MinWords: c.MinWords}
}

// EmbeddingConfig selects the encoder.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	ModelDir          string        `yaml:"model_dir"`
	BatchSize         int           `yaml:"batch_size"`
	MaxLength         int           `yaml:"max_length"`
	Dimensions        int           `yaml:"dimensions"`
	Timeout           time.Duration `yaml:"timeout"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	QueryCacheSize    int           `yaml:"query_cache_size"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required,
			validation.In(embedding.ProviderLocal, embedding.ProviderHash, embedding.ProviderOpenAI, embedding.ProviderGenAI)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxLength, validation.Min(0)),
		validation.Field(&c.Dimensions, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.QueryCacheSize, validation.Min(0)),
	)
}

// EngineConfig converts the section for embedding.New.
func (c *EmbeddingConfig) EngineConfig() embedding.Config {
	return embedding.Config{
		Provider:          c.Provider,
		Model:             c.Model,
		ModelDir:          c.ModelDir,
		BatchSize:         c.BatchSize,
		MaxLength:         c.MaxLength,
		Dimensions:        c.Dimensions,
		Timeout:           c.Timeout,
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// SummaryConfig enables the summary granularity.
type SummaryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxChars int           `yaml:"max_chars"`
}

// Validate validates the summary configuration.
func (c *SummaryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.MaxChars, validation.Min(0)),
	)
}

// SummarizerConfig converts the section for llm.NewSummarizer.
func (c *SummaryConfig) SummarizerConfig() llm.Config {
	return llm.Config{
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout,
		MaxChars: c.MaxChars,
	}
}

// StoreConfig holds the persisted-artifact directory.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// Path returns the SQLite file path.
func (c *StoreConfig) Path() string {
	return filepath.Join(c.Dir, index.FileName)
}

// ReindexConfig controls when passes run.
//
// Cron, when set, replaces Interval. Watch queues a pass after note files
// change on disk.
type ReindexConfig struct {
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron"`
	Watch    bool          `yaml:"watch"`
}

// Validate validates the re-index configuration.
func (c *ReindexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
		validation.Field(&c.Cron, validation.By(func(any) error {
			if c.Cron != "" && !gronx.New().IsValid(c.Cron) {
				return fmt.Errorf("invalid cron expression %q", c.Cron)
			}
			return nil
		})),
	)
}

// SuggestConfig tunes tag suggestions.
type SuggestConfig struct {
	Neighbours int      `yaml:"neighbours"`
	Limit      int      `yaml:"limit"`
	StopTags   []string `yaml:"stop_tags"`
}

// Validate validates the suggestion configuration.
func (c *SuggestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Neighbours, validation.Required, validation.Min(1)),
		validation.Field(&c.Limit, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Path:       "./notes",
			MinLength:  corpus.DefaultMinLength,
			Extensions: []string{".md"},
		},
		Extract: ExtractConfig{
			Granularities: thought.DefaultGranularities,
			MinLetters:    thought.DefaultMinLetters,
			MinWords:      thought.DefaultMinWords,
		},
		Embedding: EmbeddingConfig{
			Provider:       embedding.ProviderLocal,
			ModelDir:       embedding.DefaultModelDir,
			BatchSize:      embedding.DefaultBatchSize,
			MaxLength:      embedding.DefaultMaxLength,
			Dimensions:     embedding.DefaultDimensions,
			Timeout:        embedding.DefaultTimeout,
			QueryCacheSize: embedding.DefaultCacheSize,
		},
		Summary: SummaryConfig{
			Model:    llm.DefaultModel,
			Timeout:  llm.DefaultTimeout,
			MaxChars: llm.DefaultMaxChars,
		},
		Store: StoreConfig{
			Dir: "./data",
		},
		Reindex: ReindexConfig{
			Interval: index.DefaultInterval,
			Watch:    true,
		},
		Suggest: SuggestConfig{
			Neighbours: search.DefaultNeighbours,
			Limit:      search.DefaultTagLimit,
			StopTags:   search.DefaultStopTags,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
