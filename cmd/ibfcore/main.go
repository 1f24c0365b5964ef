// Command ibfcore is a thin demo entrypoint for the forecast pipeline
// library. Production deployments are expected to embed
// internal/pipeline directly rather than shell out to this binary
// (spec.md §1, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tehoro/ibfcore/internal/alerts"
	"github.com/tehoro/ibfcore/internal/circuitbreaker"
	"github.com/tehoro/ibfcore/internal/cliconfig"
	"github.com/tehoro/ibfcore/internal/filecache"
	"github.com/tehoro/ibfcore/internal/geocode"
	"github.com/tehoro/ibfcore/internal/impactctx"
	"github.com/tehoro/ibfcore/internal/llm"
	"github.com/tehoro/ibfcore/internal/nwp"
	"github.com/tehoro/ibfcore/internal/observability"
	"github.com/tehoro/ibfcore/internal/pipeline"
)

var (
	configPath  string
	cacheDir    string
	promptDir   string
	metricsAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ibfcore",
		Short: "Run the impact-based forecast pipeline once against a YAML configuration",
		RunE:  run,
	}
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "ibfcore.yaml", "Path to the forecast configuration YAML file")
	flags.StringVar(&cacheDir, "cache-dir", "./cache", "Root directory for the filesystem caches (geocode, nwp, impact)")
	flags.StringVar(&promptDir, "prompt-dir", "", "Directory to snapshot composed LLM prompts into; empty disables snapshotting")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus /metrics on (e.g. :9090); empty disables it")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := cliconfig.Load(configPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("metrics listening", zap.String("addr", metricsAddr))
	}

	geocodeCache, err := filecache.New(filepath.Join(cacheDir, "geocode"), "geocode")
	if err != nil {
		logger.Fatal("geocode cache", zap.Error(err))
	}
	nwpCache, err := filecache.New(filepath.Join(cacheDir, "nwp"), "nwp")
	if err != nil {
		logger.Fatal("nwp cache", zap.Error(err))
	}
	alertsCache, err := filecache.New(filepath.Join(cacheDir, "alerts"), "alerts")
	if err != nil {
		logger.Fatal("alerts cache", zap.Error(err))
	}

	nwpBreaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		Component:        "nwp",
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.CircuitBreakerTripsTotal.WithLabelValues("nwp").Inc()
		},
	})

	geocodeClient := geocode.New(geocodeCache, os.Getenv("GOOGLE_MAPS_API_KEY"), nil)
	alertsClient := alerts.New(alertsCache, os.Getenv("GOOGLE_MAPS_API_KEY"), os.Getenv("OPENWEATHERMAP_API_KEY"))
	nwpClient := nwp.New(nwpCache, nwpBreaker)

	forecastDispatcher := llm.New(logger)
	forecastDispatcher.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	forecastDispatcher.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	forecastDispatcher.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")

	translationDispatcher := llm.New(logger)
	translationDispatcher.OpenAIAPIKey = forecastDispatcher.OpenAIAPIKey
	translationDispatcher.GeminiAPIKey = forecastDispatcher.GeminiAPIKey
	translationDispatcher.OpenRouterAPIKey = forecastDispatcher.OpenRouterAPIKey

	contextDispatcher := llm.New(logger)
	contextDispatcher.OpenAIAPIKey = forecastDispatcher.OpenAIAPIKey
	contextDispatcher.GeminiAPIKey = forecastDispatcher.GeminiAPIKey

	var impactFetcher *impactctx.Fetcher
	if cfg.ImpactContextEnabled {
		impactFetcher, err = impactctx.New(filepath.Join(cacheDir, "impact"), contextDispatcher, logger)
		if err != nil {
			logger.Fatal("impact context fetcher", zap.Error(err))
		}
	}

	executor := pipeline.New(cfg)
	executor.Geocode = geocodeClient
	executor.Alerts = alertsClient
	executor.NWP = nwpClient
	executor.Impact = impactFetcher
	executor.Forecast = forecastDispatcher
	executor.Translation = translationDispatcher
	executor.Logger = logger
	executor.PromptDir = promptDir
	// Terrain left nil: this entrypoint has no elevation data source
	// configured, so dataset.Transform falls back to snow.NoTerrain{}.

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := executor.Run(ctx)
	if err != nil {
		logger.Fatal("pipeline run", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, summary.String())
	return observability.FlushTelemetry(context.Background(), logger)
}
