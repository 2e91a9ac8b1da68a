package config

// defaults returns the default configuration values, loaded first so
// any file or environment source can override them.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		// App defaults
		"app.name":        "atrium",
		"app.version":     "dev",
		"app.environment": "development",
		"app.debug":       false,

		// Server defaults
		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "30s",

		"server.cors.enabled":           true,
		"server.cors.allowed_origins":   []string{"*"},
		"server.cors.allowed_methods":   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		"server.cors.allowed_headers":   []string{"Content-Type", "Authorization", "X-Request-ID"},
		"server.cors.exposed_headers":   []string{"X-Request-ID"},
		"server.cors.allow_credentials": false,
		"server.cors.max_age":           300,

		"server.websocket.max_connections": 100,
		"server.websocket.ping_interval":   "30s",
		"server.websocket.pong_timeout":    "10s",

		// Log defaults
		"log.level":  "info",
		"log.format": "json",
		"log.output": "stdout",

		// Storage defaults
		"storage.path":        "",
		"storage.sync_writes": false,
		"storage.cache_size":  1024,

		// Index defaults
		"index.backend": "brute",
		"index.path":    "",

		// Capability defaults
		"capabilities.embedding.provider":        "mock",
		"capabilities.embedding.dimension":       384,
		"capabilities.embedding.rate_per_second": 50.0,
		"capabilities.embedding.burst":           10,
		"capabilities.summarizer.provider":       "metadata",
		"capabilities.summarizer.model":          "",
		"capabilities.summarizer.timeout":        "5s",

		// Segmentation defaults
		"segmentation.idle_gap":            "30m",
		"segmentation.topic_threshold":     0.75,
		"segmentation.retry_base":          "2s",
		"segmentation.retry_cap":           "5m",
		"segmentation.retry_interval":      "10s",
		"segmentation.idle_sweep_interval": "1m",

		// Retrieval defaults
		"retrieval.default_limit":         10,
		"retrieval.max_limit":             100,
		"retrieval.min_similarity":        0.3,
		"retrieval.recency_weight":        0.5,
		"retrieval.similarity_weight":     0.5,
		"retrieval.recency_half_life":     "168h",
		"retrieval.feedback_boost_weight": 0.1,

		// Lifecycle defaults
		"lifecycle.schedule":               "@every 1h",
		"lifecycle.decay_after":            "2160h", // 90 days
		"lifecycle.decay_step":             0.05,
		"lifecycle.archive_after":          "4320h", // 180 days
		"lifecycle.consolidate_similarity": 0.95,
		"lifecycle.consolidate_max_access": 2,
		"lifecycle.feedback_decay_boost":   0.1,

		// Governance defaults
		"governance.cache_size":   1 << 20,
		"governance.exam_enabled": true,
		"governance.exam_timeout": "30s",

		// Metrics defaults
		"metrics.enabled": true,
		"metrics.path":    "/metrics",
		"metrics.port":    9090,

		// Tracing defaults
		"tracing.enabled":     false,
		"tracing.exporter":    "otlp",
		"tracing.endpoint":    "localhost:4317",
		"tracing.timeout":     "10s",
		"tracing.sampler":     "ratio",
		"tracing.sample_rate": 0.1,
	}
}
