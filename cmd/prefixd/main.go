// Command prefixd launches the cloud IP range directory service.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/prefixd/prefixd/config"
	"github.com/prefixd/prefixd/internal/directory"
	"github.com/prefixd/prefixd/internal/fetch"
	"github.com/prefixd/prefixd/internal/observability"
	"github.com/prefixd/prefixd/internal/refresh"
	"github.com/prefixd/prefixd/internal/server/httpserver"
	"github.com/prefixd/prefixd/internal/telemetry"
)

const (
	defaultConfigPath        = "config/prefixd.yaml"
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the prefixd configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "prefixd ", log.LstdFlags)

	settings, loadedFromFile, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	logger.Printf("configuration initialised: env=%s, upstream=%s, interval=%s",
		settings.Environment, settings.Upstream.URL, settings.Upstream.RefreshInterval)

	observability.SetLogger(observability.NewSlogLogger(os.Stderr, settings.Log.Level, settings.Log.Format))

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = settings.Telemetry.Enabled
	telemetryCfg.OTLPEndpoint = settings.Telemetry.OTLPEndpoint
	telemetryCfg.OTLPInsecure = settings.Telemetry.OTLPInsecure
	telemetryCfg.Environment = settings.Environment
	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		logger.Fatalf("initialise telemetry: %v", err)
	}
	metrics := telemetry.NewDirectoryMetrics()

	dir := directory.New()
	fetcher := fetch.NewHTTPFetcher(
		settings.Upstream.URL,
		settings.Upstream.FetchTimeout,
		settings.Upstream.FetchAttempts,
	)
	scheduler, err := refresh.NewScheduler(
		dir,
		fetcher.Fetch,
		settings.Upstream.RefreshInterval,
		settings.Upstream.FetchTimeout,
		metrics,
	)
	if err != nil {
		logger.Fatalf("initialise scheduler: %v", err)
	}

	server := &http.Server{
		Addr: settings.Server.Addr,
		Handler: httpserver.NewHandler(dir, metrics, httpserver.Options{
			RatePerSecond: settings.Server.RatePerSecond,
			RateBurst:     settings.Server.RateBurst,
		}),
		ReadHeaderTimeout: settings.Server.ReadHeaderTimeout,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Printf("scheduler stopped: %v", err)
		}
	})
	wg.Go(func() {
		logger.Printf("serving directory queries on %s", settings.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http server: %v", err)
			cancel()
		}
	})

	<-ctx.Done()
	logger.Printf("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}

	wg.Wait()

	telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer telemetryCancel()
	if err := provider.Shutdown(telemetryCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	logger.Printf("prefixd stopped")
}
