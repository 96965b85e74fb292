// Package config loads and validates run configuration from YAML files with
// environment-variable overrides. It provides typed structs for every stage
// of the retrieval pipeline and for the optional Redis, Kafka and PostgreSQL
// sinks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

// Model names accepted by SearchConfig.Models.
const (
	ModelTFIDF       = "tfidf"
	ModelBM25        = "bm25"
	ModelLMDirichlet = "lm-dirichlet"
)

// Config is the top-level application configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Queries  QueriesConfig  `yaml:"queries"`
	Output   OutputConfig   `yaml:"output"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AnalysisConfig controls tokenisation and normalisation. Stemming implies
// lowercasing, so Stemming with Lowercase off is rejected. The same values are
// used for documents and queries.
type AnalysisConfig struct {
	Lowercase       bool   `yaml:"lowercase"`
	RemoveStopwords bool   `yaml:"removeStopwords"`
	Stemming        bool   `yaml:"stemming"`
	MinTokenLength  int    `yaml:"minTokenLength"`
	StopwordsFile   string `yaml:"stopwordsFile"`
}

// IndexerConfig controls index construction. DataDir enables on-disk
// snapshots so identical re-runs skip indexing.
type IndexerConfig struct {
	Workers int    `yaml:"workers"`
	DataDir string `yaml:"dataDir"`
}

// SearchConfig controls ranking models, their parameters and query-level
// parallelism.
type SearchConfig struct {
	Models  []string `yaml:"models"`
	Workers int      `yaml:"workers"`
	TopK    int      `yaml:"topK"`
	K1      float64  `yaml:"k1"`
	B       float64  `yaml:"b"`
	Mu      float64  `yaml:"mu"`
}

// QueriesConfig controls query loading.
type QueriesConfig struct {
	Renumber bool `yaml:"renumber"`
}

// OutputConfig holds run file settings.
type OutputConfig struct {
	Dir   string `yaml:"dir"`
	RunID string `yaml:"runId"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds broker and topic settings for run events.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"poolSize"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	FlushOnStart bool          `yaml:"flushOnStart"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls where pipeline metrics are exported once a run
// finishes. Both targets are optional.
type MetricsConfig struct {
	Textfile       string `yaml:"textfile"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfig, "reading config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfig, "parsing config file %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config matching the classic Cranfield setup: stopwords
// removed, Snowball stemming, all three models, 100 results per query.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Lowercase:       true,
			RemoveStopwords: true,
			Stemming:        true,
			MinTokenLength:  1,
		},
		Indexer: IndexerConfig{
			Workers: 4,
		},
		Search: SearchConfig{
			Models:  []string{ModelTFIDF, ModelBM25, ModelLMDirichlet},
			Workers: 8,
			TopK:    100,
			K1:      1.2,
			B:       0.75,
			Mu:      2000,
		},
		Queries: QueriesConfig{
			Renumber: true,
		},
		Output: OutputConfig{
			Dir:   "results",
			RunID: "my_search_engine",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "cranfield",
			User:            "cranfield",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "cranfield.runs",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Job: "cranfield_search",
		},
	}
}

// Validate checks analysis, indexing and ranking parameters. Any failure is
// reported as a ConfigError.
func (c *Config) Validate() error {
	if c.Analysis.Stemming && !c.Analysis.Lowercase {
		return apperrors.New(apperrors.ErrConfig, "analysis.stemming requires analysis.lowercase")
	}
	if c.Analysis.MinTokenLength < 1 {
		return apperrors.Newf(apperrors.ErrConfig, "analysis.minTokenLength must be >= 1, got %d", c.Analysis.MinTokenLength)
	}
	if c.Indexer.Workers < 1 {
		return apperrors.Newf(apperrors.ErrConfig, "indexer.workers must be >= 1, got %d", c.Indexer.Workers)
	}
	if c.Search.Workers < 1 {
		return apperrors.Newf(apperrors.ErrConfig, "search.workers must be >= 1, got %d", c.Search.Workers)
	}
	if c.Search.TopK < 0 {
		return apperrors.Newf(apperrors.ErrConfig, "search.topK must be >= 0, got %d", c.Search.TopK)
	}
	if c.Search.K1 < 0 {
		return apperrors.Newf(apperrors.ErrConfig, "search.k1 must be >= 0, got %g", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return apperrors.Newf(apperrors.ErrConfig, "search.b must be within [0,1], got %g", c.Search.B)
	}
	if c.Search.Mu <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, "search.mu must be > 0, got %g", c.Search.Mu)
	}
	if len(c.Search.Models) == 0 {
		return apperrors.New(apperrors.ErrConfig, "search.models must name at least one model")
	}
	seen := make(map[string]struct{}, len(c.Search.Models))
	for _, m := range c.Search.Models {
		switch m {
		case ModelTFIDF, ModelBM25, ModelLMDirichlet:
		default:
			return apperrors.Newf(apperrors.ErrConfig, "unknown model %q", m)
		}
		if _, dup := seen[m]; dup {
			return apperrors.Newf(apperrors.ErrConfig, "model %q listed twice", m)
		}
		seen[m] = struct{}{}
	}
	if strings.TrimSpace(c.Output.RunID) == "" {
		return apperrors.New(apperrors.ErrConfig, "output.runId must not be empty")
	}
	if strings.ContainsAny(c.Output.RunID, " \t\n/\\") {
		return apperrors.Newf(apperrors.ErrConfig, "output.runId %q must not contain whitespace or path separators", c.Output.RunID)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return apperrors.New(apperrors.ErrConfig, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// ParseModels splits a comma-separated model list such as "bm25,tfidf".
func ParseModels(s string) []string {
	parts := strings.Split(s, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			models = append(models, p)
		}
	}
	return models
}

// applyEnvOverrides reads CR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CR_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("CR_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("CR_SEARCH_MODELS"); v != "" {
		cfg.Search.Models = ParseModels(v)
	}
	if v := os.Getenv("CR_SEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
	if v := os.Getenv("CR_SEARCH_TOPK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.TopK = n
		}
	}
	if v := os.Getenv("CR_SEARCH_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.K1 = f
		}
	}
	if v := os.Getenv("CR_SEARCH_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.B = f
		}
	}
	if v := os.Getenv("CR_SEARCH_MU"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Mu = f
		}
	}
	if v := os.Getenv("CR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CR_REDIS_FLUSH_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.FlushOnStart = b
		}
	}
	if v := os.Getenv("CR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CR_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v := os.Getenv("CR_METRICS_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}
