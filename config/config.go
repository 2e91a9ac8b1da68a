// Package config provides configuration management for Atrium.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for the Atrium memory and
// governance daemon.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Index is the vector index configuration.
	Index IndexConfig `mapstructure:"index"`

	// Capabilities configures the external embedding and summarization
	// collaborators.
	Capabilities CapabilityConfig `mapstructure:"capabilities"`

	// Segmentation is the episode segmentation configuration.
	Segmentation SegmentationConfig `mapstructure:"segmentation"`

	// Retrieval is the retrieval engine configuration.
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Lifecycle is the background sweep configuration.
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`

	// Governance is the agent maturity and gating configuration.
	Governance GovernanceConfig `mapstructure:"governance"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORS configures cross-origin request handling.
	CORS CORSConfig `mapstructure:"cors"`

	// WebSocket configures the event stream endpoint.
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// CORSConfig holds cross-origin resource sharing settings.
type CORSConfig struct {
	// Enabled enables CORS header handling.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins lists the origins allowed to call the API.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods lists the allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders lists the allowed request headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders lists the headers exposed to browsers.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials allows cookies and authorization headers.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// WebSocketConfig holds websocket event stream settings.
type WebSocketConfig struct {
	// MaxConnections caps concurrent websocket clients.
	MaxConnections int `mapstructure:"max_connections"`

	// PingInterval is the keepalive ping period.
	PingInterval time.Duration `mapstructure:"ping_interval"`

	// PongTimeout is the grace period for a pong reply.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds episode store settings.
type StorageConfig struct {
	// Path is the BadgerDB directory. Empty means in-memory.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// CacheSize is the max entries in the in-memory LRU tier.
	CacheSize int `mapstructure:"cache_size" validate:"min=0"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the index implementation (brute, chromem).
	Backend string `mapstructure:"backend" validate:"oneof=brute chromem"`

	// Path is the chromem persistence directory. Empty means in-memory.
	Path string `mapstructure:"path"`
}

// CapabilityConfig holds external collaborator settings.
type CapabilityConfig struct {
	// Embedding configures the embedding providers.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Summarizer configures the summarization capability.
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the primary backend.
	Provider string `mapstructure:"provider" validate:"oneof=mock"`

	// Dimension is the vector length the provider produces.
	Dimension int `mapstructure:"dimension" validate:"min=1"`

	// RatePerSecond caps sustained calls to the backend. Zero disables
	// rate limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"min=0"`

	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// SummarizerConfig holds summarization capability settings.
type SummarizerConfig struct {
	// Provider selects the backend (anthropic, metadata). The metadata
	// provider always synthesizes from episode metadata.
	Provider string `mapstructure:"provider" validate:"oneof=anthropic metadata"`

	// Model overrides the default LLM model.
	Model string `mapstructure:"model"`

	// Timeout caps how long one summarization call may block episode
	// closing.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SegmentationConfig holds boundary rule and retry settings.
type SegmentationConfig struct {
	// IdleGap is the silence duration that closes an episode.
	IdleGap time.Duration `mapstructure:"idle_gap"`

	// TopicThreshold is the centroid cosine similarity below which a
	// turn starts a new episode.
	TopicThreshold float64 `mapstructure:"topic_threshold" validate:"min=0,max=1"`

	// RetryBase is the initial indexing retry backoff.
	RetryBase time.Duration `mapstructure:"retry_base"`

	// RetryCap bounds the indexing retry backoff.
	RetryCap time.Duration `mapstructure:"retry_cap"`

	// RetryInterval is how often the pending queue is scanned.
	RetryInterval time.Duration `mapstructure:"retry_interval"`

	// IdleSweepInterval is how often abandoned sessions are closed.
	IdleSweepInterval time.Duration `mapstructure:"idle_sweep_interval"`
}

// RetrievalConfig holds query defaults and contextual-mode weights.
type RetrievalConfig struct {
	// DefaultLimit is the result cap when the caller does not set one.
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`

	// MaxLimit bounds caller-supplied limits.
	MaxLimit int `mapstructure:"max_limit" validate:"min=1"`

	// MinSimilarity is the semantic search floor.
	MinSimilarity float64 `mapstructure:"min_similarity" validate:"min=0,max=1"`

	// RecencyWeight and SimilarityWeight combine the contextual score.
	RecencyWeight    float64 `mapstructure:"recency_weight" validate:"min=0,max=1"`
	SimilarityWeight float64 `mapstructure:"similarity_weight" validate:"min=0,max=1"`

	// RecencyHalfLife controls how fast the recency score falls off.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`

	// FeedbackBoostWeight scales the optional feedback boost.
	FeedbackBoostWeight float64 `mapstructure:"feedback_boost_weight" validate:"min=0,max=1"`
}

// LifecycleConfig holds sweep schedule and thresholds.
type LifecycleConfig struct {
	// Schedule is the cron spec for the background sweep.
	Schedule string `mapstructure:"schedule"`

	// DecayAfter is the untouched duration before decay starts.
	DecayAfter time.Duration `mapstructure:"decay_after"`

	// DecayStep is subtracted from decay_score each sweep.
	DecayStep float64 `mapstructure:"decay_step" validate:"min=0,max=1"`

	// ArchiveAfter is the untouched duration before archival.
	ArchiveAfter time.Duration `mapstructure:"archive_after"`

	// ConsolidateSimilarity is the pairwise threshold for merging.
	ConsolidateSimilarity float64 `mapstructure:"consolidate_similarity" validate:"min=0,max=1"`

	// ConsolidateMaxAccess is the access count at or below which an
	// episode is eligible for consolidation.
	ConsolidateMaxAccess int64 `mapstructure:"consolidate_max_access" validate:"min=0"`

	// FeedbackDecayBoost is added to decay_score per feedback event.
	FeedbackDecayBoost float64 `mapstructure:"feedback_decay_boost" validate:"min=0,max=1"`
}

// GovernanceConfig holds maturity progression settings.
type GovernanceConfig struct {
	// CacheSize is the max cost of the gating decision cache in bytes.
	CacheSize int64 `mapstructure:"cache_size" validate:"min=0"`

	// ExamEnabled requires a graduation exam before promotion past the
	// supervised level.
	ExamEnabled bool `mapstructure:"exam_enabled"`

	// ExamTimeout bounds one exam replay.
	ExamTimeout time.Duration `mapstructure:"exam_timeout"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the span exporter.
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlp"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds exporter calls.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are extra headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler selects the sampling strategy (always_on, always_off, ratio).
	Sampler string `mapstructure:"sampler"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without
// sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
