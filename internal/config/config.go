// Package config provides configuration management for the book recommendation service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/book-recommendation-service/internal/availability/kcls"
	"github.com/helixir/book-recommendation-service/internal/booksources/openlibrary"
	"github.com/helixir/book-recommendation-service/internal/candidates"
	"github.com/helixir/book-recommendation-service/internal/enrich"
	"github.com/helixir/book-recommendation-service/internal/events"
	"github.com/helixir/book-recommendation-service/internal/llm"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/pipeline"
	"github.com/helixir/book-recommendation-service/internal/query"
	"github.com/helixir/book-recommendation-service/internal/ranking"
	"github.com/helixir/book-recommendation-service/internal/resilience"
	"github.com/helixir/book-recommendation-service/internal/session"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "BOOKREC"

// Environment variables holding secrets. They are never read from config files.
const (
	EnvOpenAIAPIKey    = EnvPrefix + "_LLM_OPENAI_API_KEY"
	EnvAnthropicAPIKey = EnvPrefix + "_LLM_ANTHROPIC_API_KEY"
)

// Config holds all configuration for the book recommendation service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains candidate generation and embedding settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Candidates selects the candidate source strategy.
	Candidates CandidatesConfig `mapstructure:"candidates"`
	// Ranking contains the composite score knobs.
	Ranking pipeline.Config `mapstructure:"ranking"`
	// Query contains the parser vocabulary overrides.
	Query QueryConfig `mapstructure:"query"`
	// Enrich contains the enrichment fan-out settings.
	Enrich enrich.FanoutConfig `mapstructure:"enrich"`
	// OpenLibrary contains the metadata and search API settings.
	OpenLibrary SourceConfig `mapstructure:"openlibrary"`
	// KCLS contains the library catalog settings.
	KCLS SourceConfig `mapstructure:"kcls"`
	// Session contains conversation store settings.
	Session session.Config `mapstructure:"session"`
	// CORS contains cross-origin settings for the chat endpoint.
	CORS CORSConfig `mapstructure:"cors"`
	// RateLimit contains per-client inbound rate limiting.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// Kafka contains the event publisher settings.
	Kafka events.Config `mapstructure:"kafka"`
	// Breakers overrides circuit breaker settings by collaborator name
	// (llm, embedder, openlibrary, kcls).
	Breakers map[string]resilience.BreakerConfig `mapstructure:"breakers"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds one /chat request end to end.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxBodyBytes caps the /chat request body.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, discard).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the candidate generator (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// MaxTokens caps each completion.
	MaxTokens int `mapstructure:"max_tokens"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// EmbeddingModel is the OpenAI model used for semantic ranking.
	EmbeddingModel string `mapstructure:"embedding_model"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI ProviderConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ProviderConfig holds settings for one LLM provider.
type ProviderConfig struct {
	// APIKey is loaded from the BOOKREC_LLM_<PROVIDER>_API_KEY env var only.
	APIKey string `mapstructure:"-"`
	// Model is the model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// CandidatesConfig holds the candidate source settings.
type CandidatesConfig struct {
	// Strategy is llm or search.
	Strategy string `mapstructure:"strategy"`
	// InitialFetchLimit is how many search hits are fetched before filtering.
	InitialFetchLimit int `mapstructure:"initial_fetch_limit"`
}

// QueryConfig holds parser vocabulary overrides.
type QueryConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	DefaultCount    int      `mapstructure:"default_count"`
	MinCount        int      `mapstructure:"min_count"`
	MaxCount        int      `mapstructure:"max_count"`
	ExtraStopWords  []string `mapstructure:"extra_stop_words"`
}

// SourceConfig holds settings for one upstream HTTP collaborator.
type SourceConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the rate limiter burst.
	BurstSize int `mapstructure:"burst_size"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxAge         int      `mapstructure:"max_age"`
}

// RateLimitConfig holds per-client inbound rate limiting.
type RateLimitConfig struct {
	// Enabled toggles the limiter.
	Enabled bool `mapstructure:"enabled"`
	// Requests is how many requests one client may send per Window.
	Requests int `mapstructure:"requests"`
	// Window is the limiter window.
	Window time.Duration `mapstructure:"window"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Observability converts the logging section into the logger's config.
func (c LoggingConfig) Observability() observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddSource:  c.AddSource,
		TimeFormat: c.TimeFormat,
	}
}

// Factory converts the LLM section into the client factory's config.
func (c LLMConfig) Factory(metrics *observability.Metrics) llm.FactoryConfig {
	return llm.FactoryConfig{
		Provider:       strings.ToLower(c.Provider),
		Temperature:    c.Temperature,
		MaxTokens:      c.MaxTokens,
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
		EmbeddingModel: c.EmbeddingModel,
		OpenAI: llm.OpenAIConfig{
			APIKey:  c.OpenAI.APIKey,
			Model:   c.OpenAI.Model,
			BaseURL: c.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  c.Anthropic.APIKey,
			Model:   c.Anthropic.Model,
			BaseURL: c.Anthropic.BaseURL,
		},
		Metrics: metrics,
	}
}

// Tables builds the parser vocabulary from the query section.
func (c QueryConfig) Tables() query.Tables {
	return query.NewTables(query.Options{
		DefaultLanguage: c.DefaultLanguage,
		DefaultCount:    c.DefaultCount,
		MinCount:        c.MinCount,
		MaxCount:        c.MaxCount,
		ExtraStopWords:  c.ExtraStopWords,
	})
}

// OpenLibraryConfig converts the openlibrary section into the client's config.
func (c *Config) OpenLibraryConfig() openlibrary.Config {
	return openlibrary.Config{
		BaseURL:   c.OpenLibrary.BaseURL,
		Timeout:   c.OpenLibrary.Timeout,
		RateLimit: c.OpenLibrary.RateLimit,
		BurstSize: c.OpenLibrary.BurstSize,
	}
}

// KCLSConfig converts the kcls section into the catalog client's config.
func (c *Config) KCLSConfig() kcls.Config {
	return kcls.Config{
		BaseURL:   c.KCLS.BaseURL,
		Timeout:   c.KCLS.Timeout,
		RateLimit: c.KCLS.RateLimit,
		BurstSize: c.KCLS.BurstSize,
	}
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration like Load, reading path instead of searching
// the default locations when path is non-empty.
func LoadFile(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith loads configuration like LoadFile and then applies overrides, keyed
// by dotted config path (e.g. "candidates.strategy"). Overrides win over files
// and the environment.
func LoadWith(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/book-recommendation-service")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.LLM.Anthropic.APIKey = os.Getenv(EnvAnthropicAPIKey)
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.max_body_bytes", 16<<10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "bookrec")

	// LLM defaults. API keys come from loadSecrets.
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.embedding_model", llm.DefaultEmbeddingModel)
	v.SetDefault("llm.openai.model", llm.DefaultOpenAIModel)
	v.SetDefault("llm.openai.base_url", llm.DefaultOpenAIBaseURL)
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Candidate source defaults
	v.SetDefault("candidates.strategy", candidates.StrategyLLM)
	v.SetDefault("candidates.initial_fetch_limit", candidates.DefaultFetchLimit)

	// Ranking defaults
	floor := ranking.DefaultFloor()
	v.SetDefault("ranking.popularity_weight", pipeline.DefaultConfig().PopularityWeight)
	v.SetDefault("ranking.min_ratings_count", floor.MinRatingsCount)
	v.SetDefault("ranking.min_avg_rating", floor.MinAvgRating)
	v.SetDefault("ranking.apply_popularity_floor", false)

	// Query defaults
	v.SetDefault("query.default_language", query.DefaultLanguage)
	v.SetDefault("query.default_count", query.DefaultCount)
	v.SetDefault("query.min_count", query.MinCount)
	v.SetDefault("query.max_count", query.MaxCount)
	v.SetDefault("query.extra_stop_words", []string{})

	// Enrichment defaults
	v.SetDefault("enrich.workers", enrich.DefaultWorkers)
	v.SetDefault("enrich.candidate_timeout", enrich.DefaultCandidateTimeout.String())

	// Upstream defaults
	v.SetDefault("openlibrary.base_url", openlibrary.DefaultBaseURL)
	v.SetDefault("openlibrary.timeout", openlibrary.DefaultTimeout.String())
	v.SetDefault("openlibrary.rate_limit", openlibrary.DefaultRateLimit)
	v.SetDefault("openlibrary.burst_size", openlibrary.DefaultBurstSize)
	v.SetDefault("kcls.base_url", "https://kcls.bibliocommons.com")
	v.SetDefault("kcls.timeout", kcls.DefaultTimeout.String())
	v.SetDefault("kcls.rate_limit", kcls.DefaultRateLimit)
	v.SetDefault("kcls.burst_size", kcls.DefaultBurstSize)

	// Session defaults
	v.SetDefault("session.max_entries", session.DefaultMaxEntries)
	v.SetDefault("session.max_sessions", session.DefaultMaxSessions)
	v.SetDefault("session.system_prompt", session.DefaultSystemPrompt)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 300)

	// Inbound rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.window", "1m")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.book_recommendation_service")
	v.SetDefault("kafka.group_id", "book-recommendation-service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.service_name", "book-recommendation-service")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max_body_bytes must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate candidate strategy
	switch c.Candidates.Strategy {
	case candidates.StrategyLLM, candidates.StrategySearch:
	default:
		return fmt.Errorf("invalid candidate strategy: %q", c.Candidates.Strategy)
	}

	// Validate parser bounds
	if c.Query.MinCount <= 0 {
		return fmt.Errorf("query min_count must be positive")
	}
	if c.Query.MaxCount < c.Query.MinCount {
		return fmt.Errorf("query max_count (%d) must be >= min_count (%d)", c.Query.MaxCount, c.Query.MinCount)
	}
	if _, ok := c.Query.Tables().Languages[strings.ToLower(c.Query.DefaultLanguage)]; !ok {
		return fmt.Errorf("unknown query default_language: %q", c.Query.DefaultLanguage)
	}

	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich workers must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit requests and window must be positive when enabled")
	}

	// Validate that the configured LLM provider has its required API key set.
	// The search strategy still ranks with OpenAI embeddings, but degrades
	// without them, so the key is only required for llm candidates.
	if c.Candidates.Strategy != candidates.StrategyLLM {
		return nil
	}
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires %s to be set", c.LLM.Provider, EnvOpenAIAPIKey)
		}
	case llm.ProviderAnthropic:
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires %s to be set", c.LLM.Provider, EnvAnthropicAPIKey)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	return nil
}
