// Package main is the entry point for the steer routing server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steerhttp/steer/internal/config"
	"github.com/steerhttp/steer/internal/engine"
	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	rulesPath    string
	listenAddr   string
	metricsAddr  string
	logLevel     string
	logFormat    string
	otlpEndpoint string
	showVersion  bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	ruleSet := loadRules(flags.rulesPath, logger)
	app := initApplication(ruleSet, flags, logger)

	run(app, flags, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	rulesPath := flag.String("rules", getEnvOrDefault("STEER_RULES_PATH", "configs/rules.yaml"),
		"Path to rule file")
	listenAddr := flag.String("listen", getEnvOrDefault("STEER_LISTEN_ADDR", ":8080"),
		"Listen address")
	metricsAddr := flag.String("metrics-listen", getEnvOrDefault("STEER_METRICS_ADDR", ""),
		"Metrics listen address (empty disables the metrics server)")
	logLevel := flag.String("log-level", getEnvOrDefault("STEER_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("STEER_LOG_FORMAT", "json"),
		"Log format (json, console)")
	otlpEndpoint := flag.String("otlp-endpoint", getEnvOrDefault("STEER_OTLP_ENDPOINT", ""),
		"OTLP trace collector endpoint (empty disables tracing)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		rulesPath:    *rulesPath,
		listenAddr:   *listenAddr,
		metricsAddr:  *metricsAddr,
		logLevel:     *logLevel,
		logFormat:    *logFormat,
		otlpEndpoint: *otlpEndpoint,
		showVersion:  *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("steer version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadRules loads and validates the rule file.
func loadRules(path string, logger observability.Logger) *config.RuleSet {
	logger.Info("starting steer",
		observability.String("version", version),
		observability.String("rules", path),
	)

	ruleSet, err := config.Load(path)
	if err != nil {
		logger.Fatal("failed to load rule file", observability.Error(err))
	}

	logRuleCounts(ruleSet, logger)
	return ruleSet
}

// logRuleCounts logs a summary of the loaded rule set.
func logRuleCounts(ruleSet *config.RuleSet, logger observability.Logger) {
	rewriteCount := 0
	if ruleSet.Rewrites != nil {
		rewriteCount = len(ruleSet.Rewrites.BeforeFiles) +
			len(ruleSet.Rewrites.AfterFiles) +
			len(ruleSet.Rewrites.Fallback)
	}

	logger.Info("rule file loaded",
		observability.String("basePath", ruleSet.BasePath),
		observability.Int("redirects", len(ruleSet.Redirects)),
		observability.Int("rewrites", rewriteCount),
		observability.Int("headers", len(ruleSet.Headers)),
	)
}

// application holds all application components.
type application struct {
	engine  *engine.Engine
	cache   *pattern.Cache
	metrics *observability.Metrics
	tracer  *observability.Tracer
	server  *http.Server
}

// initApplication initializes all application components.
func initApplication(ruleSet *config.RuleSet, flags cliFlags, logger observability.Logger) *application {
	metrics := observability.NewMetrics("steer")
	tracer := initTracer(flags, logger)

	cache := pattern.NewCache(
		pattern.WithMetrics(pattern.NewCacheMetrics("steer", metrics.Registry())),
	)

	built, err := ruleSet.Build(cache)
	if err != nil {
		logger.Fatal("failed to compile rule set", observability.Error(err))
	}

	eng := engine.New(built,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer),
		engine.WithCache(cache),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(engine.GinMiddleware(eng, logger))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	server := &http.Server{
		Addr:              flags.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &application{
		engine:  eng,
		cache:   cache,
		metrics: metrics,
		tracer:  tracer,
		server:  server,
	}
}

// initTracer initializes the tracer.
func initTracer(flags cliFlags, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "steer",
		OTLPEndpoint: flags.otlpEndpoint,
		SamplingRate: 1.0,
		Enabled:      flags.otlpEndpoint != "",
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	return tracer
}

// run starts the servers and the rule watcher, then waits for shutdown.
func run(app *application, flags cliFlags, logger observability.Logger) {
	go func() {
		logger.Info("listening", observability.String("addr", flags.listenAddr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", observability.Error(err))
		}
	}()

	metricsServer := startMetricsServerIfEnabled(app, flags, logger)
	watcher := startRuleWatcher(app, flags.rulesPath, logger)

	waitForShutdown(app, metricsServer, watcher, logger)
}

// startMetricsServerIfEnabled starts the metrics server when an address is
// configured.
func startMetricsServerIfEnabled(app *application, flags cliFlags, logger observability.Logger) *http.Server {
	if flags.metricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              flags.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", observability.String("addr", flags.metricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", observability.Error(err))
		}
	}()

	return server
}

// startRuleWatcher starts the rule file watcher: validated reloads swap
// the engine's rule set, invalid files keep the previous rules.
func startRuleWatcher(app *application, rulesPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(rulesPath, func(ruleSet *config.RuleSet) {
		built, buildErr := ruleSet.Build(app.cache)
		if buildErr != nil {
			logger.Error("failed to compile reloaded rules", observability.Error(buildErr))
			return
		}
		app.engine.SwapRules(built)
	}, config.WithLogger(logger))

	if err != nil {
		logger.Warn("failed to create rule watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start rule watcher", observability.Error(err))
	}

	return watcher
}

// waitForShutdown waits for a shutdown signal and stops everything
// gracefully.
func waitForShutdown(
	app *application,
	metricsServer *http.Server,
	watcher *config.Watcher,
	logger observability.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("steer stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
