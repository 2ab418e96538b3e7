package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider        string `yaml:"provider"`
	APIKey          string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel      string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	CompletionModel string `yaml:"providerCompletionModel" envconfig:"PROVIDER_COMPLETION_MODEL"`
	ProjectID       string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location        string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim             int    `yaml:"providerDim" envconfig:"EMBED_DIM"`
	Database        string `yaml:"database" envconfig:"DB_URL"`
	SpoolDir        string `yaml:"spoolDir" split_words:"true"`
	LogLevel        string `yaml:"logLevel" split_words:"true"`
	Port            int    `yaml:"port" split_words:"true"`

	Chunking ChunkingSpecification `yaml:"chunking"`
	Indexing IndexingSpecification `yaml:"indexing"`
	Query    QuerySpecification    `yaml:"query"`
	News     NewsSpecification     `yaml:"news"`

	flags *pflag.FlagSet `ignored:"true"`
}

type ChunkingSpecification struct {
	ChunkSize         int `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap      int `yaml:"chunkOverlap" split_words:"true"`
	MaxTokensPerChunk int `yaml:"maxTokensPerChunk" split_words:"true"`
}

type IndexingSpecification struct {
	MaxConcurrentChunking int `yaml:"maxConcurrentChunking" split_words:"true"`
	EmbeddingBatchSize    int `yaml:"embeddingBatchSize" split_words:"true"`
	SummaryTimeoutSeconds int `yaml:"summaryTimeoutSeconds" split_words:"true"`
}

type QuerySpecification struct {
	TopK                int     `yaml:"topK" split_words:"true"`
	CandidateMultiplier int     `yaml:"candidateMultiplier" split_words:"true"`
	VectorWeight        float64 `yaml:"vectorWeight" split_words:"true"`
	KeywordWeight       float64 `yaml:"keywordWeight" split_words:"true"`
}

type NewsSpecification struct {
	ClientID     string `yaml:"clientID" split_words:"true"`
	ClientSecret string `yaml:"clientSecret" split_words:"true"`
	MaxResults   int    `yaml:"maxResults" split_words:"true"`
}

const envPrefix = "DARTSEARCH"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/dartsearch.yaml",
				"config/config.yaml",
				"./dartsearch.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := cfg.validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func (c *Specification) validate() error {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.MaxTokensPerChunk < c.Chunking.ChunkSize {
		return fmt.Errorf("max tokens per chunk (%d) must be >= chunk size (%d)",
			c.Chunking.MaxTokensPerChunk, c.Chunking.ChunkSize)
	}
	if c.Indexing.MaxConcurrentChunking <= 0 {
		return fmt.Errorf("max concurrent chunking must be positive, got %d", c.Indexing.MaxConcurrentChunking)
	}
	if c.Indexing.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Indexing.EmbeddingBatchSize)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", c.Query.TopK)
	}
	if c.Query.CandidateMultiplier < 1 {
		return fmt.Errorf("candidate multiplier must be >= 1, got %d", c.Query.CandidateMultiplier)
	}
	if c.Query.VectorWeight < 0 || c.Query.KeywordWeight < 0 {
		return fmt.Errorf("rerank weights must be non-negative")
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (stub, openai, vertexai)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-completion-model", c.CompletionModel, "Provider completion model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("db-url", c.Database, "Database URL (DSN); empty selects the in-memory index")
	fs.String("spool-dir", c.SpoolDir, "Directory the gateway writes normalized disclosures to")

	fs.Int("chunk-size", c.Chunking.ChunkSize, "Target narrative chunk size in tokens")
	fs.Int("chunk-overlap", c.Chunking.ChunkOverlap, "Tokens shared between adjacent narrative chunks")
	fs.Int("max-tokens-per-chunk", c.Chunking.MaxTokensPerChunk, "Hard token budget per chunk")
	fs.Int("max-concurrent-chunking", c.Indexing.MaxConcurrentChunking, "Documents chunking/embedding at once")
	fs.Int("embedding-batch-size", c.Indexing.EmbeddingBatchSize, "Texts per embedding provider call")
	fs.Int("summary-timeout-seconds", c.Indexing.SummaryTimeoutSeconds, "Wall-clock budget for the document summary")

	fs.Int("top-k", c.Query.TopK, "Chunks returned per query")
	fs.Float64("vector-weight", c.Query.VectorWeight, "Rerank weight for cosine similarity")
	fs.Float64("keyword-weight", c.Query.KeywordWeight, "Rerank weight for keyword overlap")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}

	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-completion-model", &c.CompletionModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setInt("embed-dim", &c.Dim)

	setStr("db-url", &c.Database)
	setStr("spool-dir", &c.SpoolDir)

	setInt("chunk-size", &c.Chunking.ChunkSize)
	setInt("chunk-overlap", &c.Chunking.ChunkOverlap)
	setInt("max-tokens-per-chunk", &c.Chunking.MaxTokensPerChunk)
	setInt("max-concurrent-chunking", &c.Indexing.MaxConcurrentChunking)
	setInt("embedding-batch-size", &c.Indexing.EmbeddingBatchSize)
	setInt("summary-timeout-seconds", &c.Indexing.SummaryTimeoutSeconds)

	setInt("top-k", &c.Query.TopK)
	setFloat("vector-weight", &c.Query.VectorWeight)
	setFloat("keyword-weight", &c.Query.KeywordWeight)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.Location = "us-central1"
	c.Dim = 0
	c.Database = ""
	c.SpoolDir = "./spool"
	c.LogLevel = "info"
	c.Port = 8080

	c.Chunking.ChunkSize = 800
	c.Chunking.ChunkOverlap = 200
	c.Chunking.MaxTokensPerChunk = 1000

	c.Indexing.MaxConcurrentChunking = 5
	c.Indexing.EmbeddingBatchSize = 10
	c.Indexing.SummaryTimeoutSeconds = 60

	c.Query.TopK = 5
	c.Query.CandidateMultiplier = 3
	c.Query.VectorWeight = 0.7
	c.Query.KeywordWeight = 0.3

	c.News.MaxResults = 3
}
