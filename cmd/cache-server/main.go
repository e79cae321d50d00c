// Command cache-server runs the multi-tier cache engine as a standalone
// service, exposing its health and statistics endpoints plus Prometheus
// metrics over HTTP. It is the deployment shape used when the cache is
// shared by several knowledge-mesh services instead of embedded in one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/cache"
	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

var (
	configFile  = flag.String("config", "", "Path to the configuration file")
	listenAddr  = flag.String("listen", ":8090", "HTTP listen address")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	healthCheck = flag.Bool("health-check", false, "Run a health check against a running instance and exit")
)

func main() {
	flag.Parse()

	if *healthCheck {
		runHealthCheck()
		return
	}

	logger := observability.NewStandardLogger("cache-server")
	if sl, ok := logger.(*observability.StandardLogger); ok {
		logger = sl.WithLevel(parseLogLevel(*logLevel))
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	metrics := observability.NewPrometheusMetricsClient("kmesh", "cache")
	coordinator, err := cache.NewCoordinator(cfg, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize cache coordinator: %v", err)
	}

	mux := http.NewServeMux()
	cache.NewHealthHandler(coordinator, logger).RegisterRoutes(mux, "/health")
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("cache server listening", map[string]interface{}{
			"addr": *listenAddr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	if err := coordinator.Close(); err != nil {
		logger.Warn("cache coordinator shutdown error", map[string]interface{}{"error": err.Error()})
	}
}

func loadConfig() (cache.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return cache.Config{}, fmt.Errorf("failed to read config file %s: %w", *configFile, err)
		}
	}

	return cache.LoadConfigFromViper(v)
}

func runHealthCheck() {
	addr := *listenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		log.Printf("Health check failed: %v", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Health check failed with status: %d", resp.StatusCode)
		os.Exit(1)
	}
	os.Exit(0)
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.LogLevelDebug
	case "warn":
		return observability.LogLevelWarn
	case "error":
		return observability.LogLevelError
	default:
		return observability.LogLevelInfo
	}
}
