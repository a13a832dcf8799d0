package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/models"
	pkgconfig "github.com/starford/notemind/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if got := cfg.Store.Path(); got != filepath.Join("data", index.FileName) {
		t.Errorf("store path = %q", got)
	}
}

func TestConfig_RejectsUnknownGranularity(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Extract.Granularities = []models.Granularity{models.GranularitySentence, "chapter"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown granularity should fail validation")
	}
}

func TestConfig_RejectsUnknownProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Embedding.Provider = "magic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown provider should fail validation")
	}
}

func TestEmbeddingConfig_DefaultsToPretrainedModel(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Embedding.Provider != embedding.ProviderLocal {
		t.Errorf("default provider = %q, want %q", cfg.Embedding.Provider, embedding.ProviderLocal)
	}
	if got := cfg.Embedding.EngineConfig().ModelDir; got != embedding.DefaultModelDir {
		t.Errorf("model dir = %q, want %q", got, embedding.DefaultModelDir)
	}
	cfg.Embedding.Provider = embedding.ProviderHash
	if err := cfg.Validate(); err != nil {
		t.Fatalf("hash provider should validate: %v", err)
	}
}

func TestReindexConfig_Cron(t *testing.T) {
	cfg := ReindexConfig{Cron: "*/30 * * * *"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
	cfg.Cron = "every half hour"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid cron should fail validation")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("NOTEMIND_TEST_TOKEN", "s3cret")
	yaml := `
corpus:
  path: /srv/notes
  min_length: 10
extract:
  granularities: [sentence, summary]
  min_letters: 5
reindex:
  interval: 10m
  watch: false
suggest:
  stop_tags: ["", voice, random]
auth:
  mode: token
  token: ${NOTEMIND_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Corpus.Path != "/srv/notes" || cfg.Corpus.MinLength != 10 {
		t.Errorf("corpus = %+v", cfg.Corpus)
	}
	if cfg.Extract.Filter().MinLetters != 5 || cfg.Extract.Filter().MinWords != 3 {
		t.Errorf("filter = %+v", cfg.Extract.Filter())
	}
	if len(cfg.Extract.Granularities) != 2 || cfg.Extract.Granularities[1] != models.GranularitySummary {
		t.Errorf("granularities = %v", cfg.Extract.Granularities)
	}
	if cfg.Reindex.Interval != 10*time.Minute || cfg.Reindex.Watch {
		t.Errorf("reindex = %+v", cfg.Reindex)
	}
	if len(cfg.Suggest.StopTags) != 3 || cfg.Suggest.Neighbours != 10 {
		t.Errorf("suggest = %+v", cfg.Suggest)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, want expanded env value", cfg.Auth.Token)
	}
}
