package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/api"
	"github.com/atriumhq/atrium/pkg/api/handlers"
	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/capability/embedder/mock"
	"github.com/atriumhq/atrium/pkg/capability/summarizer/anthropic"
	"github.com/atriumhq/atrium/pkg/events"
	"github.com/atriumhq/atrium/pkg/governance"
	"github.com/atriumhq/atrium/pkg/index"
	"github.com/atriumhq/atrium/pkg/lifecycle"
	"github.com/atriumhq/atrium/pkg/logger"
	"github.com/atriumhq/atrium/pkg/metrics"
	"github.com/atriumhq/atrium/pkg/retrieval"
	"github.com/atriumhq/atrium/pkg/segment"
	"github.com/atriumhq/atrium/pkg/store"
	"github.com/atriumhq/atrium/pkg/telemetry/tracing"
	"github.com/atriumhq/atrium/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Load configuration with CLI overrides
	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting Atrium",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Distributed tracing
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version, cfg.App.Environment)
		if err != nil {
			log.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Error("Tracing shutdown failed", "error", err)
			}
		}()
		log.Info("Initialized tracing", "endpoint", cfg.Tracing.Endpoint)
	}

	// Episode store
	st, err := store.Open(store.Config{
		Path:       cfg.Storage.Path,
		SyncWrites: cfg.Storage.SyncWrites,
		CacheSize:  cfg.Storage.CacheSize,
	})
	if err != nil {
		log.Error("Failed to open episode store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("Error closing episode store", "error", err)
		}
	}()
	log.Info("Opened episode store", "path", cfg.Storage.Path)

	// Vector index
	var idx index.Index
	switch cfg.Index.Backend {
	case "chromem":
		chromemIdx, err := index.NewChromemIndex(cfg.Index.Path, cfg.Capabilities.Embedding.Dimension)
		if err != nil {
			log.Error("Failed to open chromem index", "error", err)
			os.Exit(1)
		}
		idx = chromemIdx
		log.Info("Initialized chromem index", "path", cfg.Index.Path)
	default:
		idx = index.NewBruteIndex(cfg.Capabilities.Embedding.Dimension)
		log.Info("Initialized brute-force index", "dimension", cfg.Capabilities.Embedding.Dimension)
	}

	// Embedding providers
	embedders := capability.NewEmbedderRegistry()
	var primary capability.Embedder = mock.New(cfg.Capabilities.Embedding.Dimension)
	if cfg.Capabilities.Embedding.RatePerSecond > 0 {
		primary = capability.NewRateLimitedEmbedder(primary,
			cfg.Capabilities.Embedding.RatePerSecond, cfg.Capabilities.Embedding.Burst)
	}
	embedders.Register(cfg.Capabilities.Embedding.Provider, primary)

	// Summarizer
	var summarizer capability.Summarizer
	if cfg.Capabilities.Summarizer.Provider == "anthropic" {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			log.Warn("ANTHROPIC_API_KEY not set, falling back to metadata summaries")
		} else {
			client := sdk.NewClient(option.WithAPIKey(apiKey))
			var opts []anthropic.Option
			if cfg.Capabilities.Summarizer.Model != "" {
				opts = append(opts, anthropic.WithModel(cfg.Capabilities.Summarizer.Model))
			}
			summarizer = anthropic.New(client, opts...)
			log.Info("Initialized Anthropic summarizer", "model", cfg.Capabilities.Summarizer.Model)
		}
	}

	// Metrics manager
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Event fan-out for websockets and governance episode crediting
	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	// Segmentation engine with durable index retry
	retryQueue := segment.NewRetryQueue(st.DB(), cfg.Segmentation.RetryBase, cfg.Segmentation.RetryCap)
	segmenter := segment.NewSegmenter(cfg.Segmentation, st, idx, embedders, summarizer,
		segment.WithLogger(log),
		segment.WithEvents(broadcaster),
		segment.WithRetryQueue(retryQueue),
		segment.WithMetrics(metricsManager),
		segment.WithSummaryTimeout(cfg.Capabilities.Summarizer.Timeout),
	)
	if err := segmenter.Start(ctx); err != nil {
		log.Error("Failed to start segmenter", "error", err)
		os.Exit(1)
	}

	// Retrieval engine
	retriever := retrieval.NewEngine(cfg.Retrieval, st, idx, embedders,
		retrieval.WithLogger(log),
	)

	// Lifecycle sweep
	lifecycleManager := lifecycle.NewManager(cfg.Lifecycle, st, idx,
		lifecycle.WithLogger(log),
		lifecycle.WithEvents(broadcaster),
		lifecycle.WithMetrics(metricsManager),
	)
	if err := lifecycleManager.Start(ctx); err != nil {
		log.Error("Failed to start lifecycle manager", "error", err)
		os.Exit(1)
	}

	// Governance engine
	profiles := governance.NewProfileStore(st.DB())
	governanceEngine, err := governance.NewEngine(cfg.Governance, profiles,
		governance.WithLogger(log),
		governance.WithEvents(broadcaster),
		governance.WithMetrics(metricsManager),
	)
	if err != nil {
		log.Error("Failed to create governance engine", "error", err)
		os.Exit(1)
	}
	defer governanceEngine.Close()

	// Credit closed episodes toward agent maturity
	go governanceEngine.Watch(ctx, broadcaster)

	// HTTP handlers
	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		MaxConnections: cfg.Server.WebSocket.MaxConnections,
		PingInterval:   cfg.Server.WebSocket.PingInterval,
		PongTimeout:    cfg.Server.WebSocket.PongTimeout,
	})
	go wsHandler.Bridge(ctx, broadcaster)
	defer wsHandler.Close()

	apiHandlers := &api.Handlers{
		Session:    handlers.NewSessionHandler(segmenter, log),
		Retrieval:  handlers.NewRetrievalHandler(retriever, metricsManager, log),
		Governance: handlers.NewGovernanceHandler(governanceEngine, log),
		Lifecycle:  handlers.NewLifecycleHandler(lifecycleManager, log),
		Health: handlers.NewHealthHandler(map[string]handlers.ComponentChecker{
			"store": st.Ping,
		}),
		WebSocket: wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Hot configuration reload
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Warn("Config watching unavailable", "error", err)
		} else {
			current := config.ExtractHotReloadable(cfg)
			watcher.OnChange(func(updated *config.Config) {
				next := config.ExtractHotReloadable(updated)
				if !next.Changed(current) {
					log.Debug("Configuration reloaded, no hot-reloadable changes", "path", *configPath)
					return
				}
				if next.LogLevel != current.LogLevel {
					logger.SetLevel(logger.ParseLevel(next.LogLevel))
					log.Info("Log level updated", "level", next.LogLevel)
				}
				segmenter.Reconfigure(next.TopicThreshold)
				retriever.Reconfigure(next.RetrievalMinSim)
				lifecycleManager.Reconfigure(next.DecayStep, next.ConsolidateSimilarity)
				current = next
				log.Info("Configuration reloaded", "path", *configPath)
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	log.Info("Atrium is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	log.Info("Stopping lifecycle manager")
	if err := lifecycleManager.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping lifecycle manager", "error", err)
	}

	// Segmenter last among the engines so in-flight episodes close and
	// publish before the store goes away.
	log.Info("Stopping segmenter")
	if err := segmenter.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping segmenter", "error", err)
	}

	log.Info("Atrium stopped gracefully")
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Atrium - Agent Memory and Governance Daemon\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Atrium - Episodic memory and maturity governance for agent fleets\n\n")
	fmt.Printf("Usage: atrium [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  atrium                                    # Run with default config\n")
	fmt.Printf("  atrium -config config.yaml                # Use specific config file\n")
	fmt.Printf("  atrium -port 9090 -log-level debug        # Override specific options\n")
	fmt.Printf("  atrium -version                           # Print version info\n")
}
