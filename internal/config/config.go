package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"
)

// RouterConfig holds workflow router tunables
type RouterConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxRetries          int     `mapstructure:"max_retries"`
	ContextMessages     int     `mapstructure:"context_messages"`
	HybridSnippets      int     `mapstructure:"hybrid_snippets"`
	FallbackTopK        int     `mapstructure:"fallback_top_k"`
	MaxContextRows      int     `mapstructure:"max_context_rows"`
}

// SessionConfig holds session store bounds
type SessionConfig struct {
	MaxHistory             int    `mapstructure:"max_history"`
	TTLMinutes             int    `mapstructure:"ttl_minutes"`
	PersistDir             string `mapstructure:"persist_dir"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

// GraphConfig holds graph store connection settings
type GraphConfig struct {
	URL      string        `mapstructure:"url"`
	Database string        `mapstructure:"database"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// VectorDBConfig holds vector store connection settings
type VectorDBConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Collection     string        `mapstructure:"collection"`
	TopK           int           `mapstructure:"top_k"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Enabled        bool          `mapstructure:"enabled"`
}

// EmbeddingsConfig holds embedding service settings
type EmbeddingsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`
}

// LLMConfig holds language model service settings
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EventLogConfig holds the turn audit log settings
type EventLogConfig struct {
	DSN     string `mapstructure:"dsn"`
	Enabled bool   `mapstructure:"enabled"`
}

// ObservabilityConfig holds metrics, logging and tracing settings
type ObservabilityConfig struct {
	MetricsPort int `mapstructure:"metrics_port"`
	Logging     struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		ServiceName  string `mapstructure:"service_name"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`
}

// APIConfig holds the public HTTP API settings
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// Config is the root configuration for the orchestrator
type Config struct {
	Router        RouterConfig        `mapstructure:"router"`
	Session       SessionConfig       `mapstructure:"session"`
	Graph         GraphConfig         `mapstructure:"graph"`
	VectorDB      VectorDBConfig      `mapstructure:"vectordb"`
	Embeddings    EmbeddingsConfig    `mapstructure:"embeddings"`
	LLM           LLMConfig           `mapstructure:"llm"`
	EventLog      EventLogConfig      `mapstructure:"eventlog"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	API           APIConfig           `mapstructure:"api"`
}

// Path returns the config file path from CONFIG_PATH or the default location
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config/medassist.yaml"
}

// Load reads the config file, applies defaults and env overrides
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(Path())
	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine, defaults and env cover everything
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnvOverrides(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("router.confidence_threshold", 0.7)
	v.SetDefault("router.max_retries", 2)
	v.SetDefault("router.context_messages", 2)
	v.SetDefault("router.hybrid_snippets", 2)
	v.SetDefault("router.fallback_top_k", 3)
	v.SetDefault("router.max_context_rows", 5)

	v.SetDefault("session.max_history", 20)
	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("session.persist_dir", "./data/sessions")
	v.SetDefault("session.cleanup_interval_minutes", 5)

	v.SetDefault("graph.url", "http://localhost:7474")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.timeout", 10*time.Second)

	v.SetDefault("vectordb.host", "localhost")
	v.SetDefault("vectordb.port", 6333)
	v.SetDefault("vectordb.collection", "policy_documents")
	v.SetDefault("vectordb.top_k", 3)
	v.SetDefault("vectordb.score_threshold", 0.0)
	v.SetDefault("vectordb.timeout", 5*time.Second)
	v.SetDefault("vectordb.enabled", true)

	v.SetDefault("embeddings.base_url", "http://localhost:8000")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout", 10*time.Second)
	v.SetDefault("embeddings.cache_ttl", 24*time.Hour)
	v.SetDefault("embeddings.redis_addr", "")

	v.SetDefault("llm.base_url", "http://localhost:8000")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("eventlog.dsn", "")
	v.SetDefault("eventlog.enabled", false)

	v.SetDefault("observability.metrics_port", 2112)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "medassist-orchestrator")
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("api.port", 8080)
}

// applyEnvOverrides maps deployment environment variables onto config keys
func applyEnvOverrides(v *viper.Viper) {
	overrides := map[string]string{
		"NEO4J_URL":         "graph.url",
		"NEO4J_DATABASE":    "graph.database",
		"NEO4J_USERNAME":    "graph.username",
		"NEO4J_PASSWORD":    "graph.password",
		"QDRANT_HOST":       "vectordb.host",
		"QDRANT_PORT":       "vectordb.port",
		"LLM_BASE_URL":      "llm.base_url",
		"LLM_MODEL":         "llm.model",
		"EMBEDDINGS_URL":    "embeddings.base_url",
		"REDIS_ADDR":        "embeddings.redis_addr",
		"EVENTLOG_DSN":      "eventlog.dsn",
		"METRICS_PORT":      "observability.metrics_port",
		"API_PORT":          "api.port",
		"OTLP_ENDPOINT":     "observability.tracing.otlp_endpoint",
		"SESSION_TTL_MIN":   "session.ttl_minutes",
		"SESSION_MAX_HIST":  "session.max_history",
		"CONFIDENCE_THRESH": "router.confidence_threshold",
	}
	for env, key := range overrides {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}
}

// Validate checks invariants that would make the process unusable
func (c *Config) Validate() error {
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold must be in [0,1], got %f", c.Router.ConfidenceThreshold)
	}
	if c.Router.MaxRetries < 0 {
		return fmt.Errorf("router.max_retries must be >= 0, got %d", c.Router.MaxRetries)
	}
	if c.Session.MaxHistory <= 0 {
		return fmt.Errorf("session.max_history must be > 0, got %d", c.Session.MaxHistory)
	}
	if c.Session.TTLMinutes <= 0 {
		return fmt.Errorf("session.ttl_minutes must be > 0, got %d", c.Session.TTLMinutes)
	}
	if c.Graph.URL == "" {
		return fmt.Errorf("graph.url is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.EventLog.Enabled && c.EventLog.DSN == "" {
		return fmt.Errorf("eventlog.dsn is required when eventlog.enabled is true")
	}
	return nil
}

// SessionTTL returns the session TTL as a duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

// CleanupInterval returns the session cleanup cadence as a duration
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}
