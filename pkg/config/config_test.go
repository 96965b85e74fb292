package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.K1 != 1.2 || cfg.Search.B != 0.75 || cfg.Search.Mu != 2000 {
		t.Errorf("unexpected ranking defaults: %+v", cfg.Search)
	}
	if len(cfg.Search.Models) != 3 {
		t.Errorf("expected 3 default models, got %v", cfg.Search.Models)
	}
	if !cfg.Queries.Renumber {
		t.Errorf("expected query renumbering by default")
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	yaml := `
analysis:
  stemming: false
search:
  models: [bm25]
  k1: 0.9
  b: 0.4
  topK: 50
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CR_SEARCH_TOPK", "10")
	t.Setenv("CR_LOGGING_FORMAT", "json")
	t.Setenv("CR_REDIS_FLUSH_ON_START", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.Stemming {
		t.Errorf("stemming should be disabled by YAML")
	}
	if !cfg.Analysis.RemoveStopwords {
		t.Errorf("fields absent from YAML should keep defaults")
	}
	if cfg.Search.K1 != 0.9 || cfg.Search.B != 0.4 {
		t.Errorf("k1/b not loaded: %+v", cfg.Search)
	}
	if cfg.Search.TopK != 10 {
		t.Errorf("env override not applied: topK = %d", cfg.Search.TopK)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !cfg.Redis.FlushOnStart {
		t.Errorf("redis flushOnStart env override not applied")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative k1", func(c *Config) { c.Search.K1 = -1 }},
		{"b above one", func(c *Config) { c.Search.B = 1.5 }},
		{"zero mu", func(c *Config) { c.Search.Mu = 0 }},
		{"negative topK", func(c *Config) { c.Search.TopK = -3 }},
		{"unknown model", func(c *Config) { c.Search.Models = []string{"bm42"} }},
		{"duplicate model", func(c *Config) { c.Search.Models = []string{"bm25", "bm25"} }},
		{"no models", func(c *Config) { c.Search.Models = nil }},
		{"zero index workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"zero search workers", func(c *Config) { c.Search.Workers = 0 }},
		{"min token length", func(c *Config) { c.Analysis.MinTokenLength = 0 }},
		{"stemming without lowercase", func(c *Config) { c.Analysis.Lowercase = false }},
		{"run id with slash", func(c *Config) { c.Output.RunID = "a/b" }},
		{"empty run id", func(c *Config) { c.Output.RunID = " " }},
		{"kafka without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, apperrors.ErrConfig) {
				t.Errorf("Validate() = %v, want ErrConfig", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParseModels(t *testing.T) {
	got := ParseModels(" bm25, ,tfidf ")
	if len(got) != 2 || got[0] != "bm25" || got[1] != "tfidf" {
		t.Errorf("ParseModels = %v", got)
	}
}
