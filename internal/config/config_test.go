package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func defaultSpec() Specification {
	var cfg Specification
	setDefaults(&cfg)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultSpec()

	if cfg.Provider != "stub" {
		t.Errorf("Provider = %q, want stub", cfg.Provider)
	}
	if cfg.Chunking.ChunkSize != 800 || cfg.Chunking.ChunkOverlap != 200 || cfg.Chunking.MaxTokensPerChunk != 1000 {
		t.Errorf("chunking defaults = %+v", cfg.Chunking)
	}
	if cfg.Indexing.MaxConcurrentChunking != 5 || cfg.Indexing.EmbeddingBatchSize != 10 || cfg.Indexing.SummaryTimeoutSeconds != 60 {
		t.Errorf("indexing defaults = %+v", cfg.Indexing)
	}
	if cfg.Query.TopK != 5 || cfg.Query.CandidateMultiplier != 3 {
		t.Errorf("query defaults = %+v", cfg.Query)
	}
	if cfg.Query.VectorWeight != 0.7 || cfg.Query.KeywordWeight != 0.3 {
		t.Errorf("rerank weights = %+v", cfg.Query)
	}
	if cfg.Port != 8080 || cfg.LogLevel != "info" {
		t.Errorf("server defaults: port %d, log level %q", cfg.Port, cfg.LogLevel)
	}

	if err := cfg.validate(); err != nil {
		t.Errorf("defaults must validate cleanly: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Specification)
		wantErr string
	}{
		{
			name:    "zero chunk size",
			mutate:  func(c *Specification) { c.Chunking.ChunkSize = 0 },
			wantErr: "chunk size",
		},
		{
			name:    "overlap not below chunk size",
			mutate:  func(c *Specification) { c.Chunking.ChunkOverlap = 800 },
			wantErr: "chunk overlap",
		},
		{
			name:    "max tokens below chunk size",
			mutate:  func(c *Specification) { c.Chunking.MaxTokensPerChunk = 100 },
			wantErr: "max tokens",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Specification) { c.Indexing.MaxConcurrentChunking = 0 },
			wantErr: "concurrent chunking",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Specification) { c.Indexing.EmbeddingBatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Specification) { c.Query.KeywordWeight = -0.1 },
			wantErr: "weights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultSpec()
			tt.mutate(&cfg)
			err := cfg.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dartsearch.yaml")
	content := `
provider: openai
spoolDir: /var/spool/dart
chunking:
  chunkSize: 400
  chunkOverlap: 100
  maxTokensPerChunk: 500
query:
  topK: 7
news:
  clientID: naver-id
  clientSecret: naver-secret
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := defaultSpec()
	if err := loadYAML(path, &cfg); err != nil {
		t.Fatalf("loadYAML failed: %v", err)
	}

	if cfg.Provider != "openai" || cfg.SpoolDir != "/var/spool/dart" {
		t.Errorf("top-level overrides not applied: %+v", cfg)
	}
	if cfg.Chunking.ChunkSize != 400 || cfg.Chunking.ChunkOverlap != 100 {
		t.Errorf("chunking overrides not applied: %+v", cfg.Chunking)
	}
	if cfg.Query.TopK != 7 {
		t.Errorf("TopK = %d, want 7", cfg.Query.TopK)
	}
	// Untouched keys keep their defaults.
	if cfg.Query.VectorWeight != 0.7 || cfg.Indexing.EmbeddingBatchSize != 10 {
		t.Errorf("defaults lost for untouched keys: %+v", cfg)
	}
	if cfg.News.ClientID != "naver-id" || cfg.News.ClientSecret != "naver-secret" {
		t.Errorf("news credentials not applied: %+v", cfg.News)
	}

	if err := cfg.validate(); err != nil {
		t.Errorf("overridden config must validate: %v", err)
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	cfg := defaultSpec()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, &cfg)

	if err := fs.Parse([]string{
		"--chunk-size=300",
		"--chunk-overlap=50",
		"--top-k=9",
		"--log-level=debug",
	}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	applyChangedFlags(fs, &cfg)

	if cfg.Chunking.ChunkSize != 300 || cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("chunking flags not applied: %+v", cfg.Chunking)
	}
	if cfg.Query.TopK != 9 {
		t.Errorf("TopK = %d, want 9", cfg.Query.TopK)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Unchanged flags must not clobber existing values.
	if cfg.Chunking.MaxTokensPerChunk != 1000 {
		t.Errorf("unchanged flag clobbered MaxTokensPerChunk: %d", cfg.Chunking.MaxTokensPerChunk)
	}
}
