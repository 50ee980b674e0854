package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/gauntlet/internal/adapters/forecast"
	"github.com/okian/gauntlet/internal/adapters/http/api"
	"github.com/okian/gauntlet/internal/adapters/resolver"
	app "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/config"
	"github.com/okian/gauntlet/internal/domain/qualify"
	"github.com/okian/gauntlet/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection; the custom registry carries
	// only tournament metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	horizons, err := cfg.ModelHorizons()
	if err != nil {
		os.Stderr.WriteString("invalid horizon config: " + err.Error() + "\n")
		return
	}

	policy, err := qualify.New(qualify.Mode(cfg.QualifyMode), cfg.QualifyMargin, cfg.QualifyTopFraction)
	if err != nil {
		os.Stderr.WriteString("invalid qualification config: " + err.Error() + "\n")
		return
	}

	// Candle windows arrive through POST /candles and resolve labels here.
	feed := resolver.NewStaticFeed()
	res := resolver.NewReplay(feed)

	forecasters := make([]forecast.Forecaster, 0, len(cfg.Models))
	for _, id := range cfg.Models {
		forecasters = append(forecasters, forecast.NewHTTPForecaster(id, cfg.ModelEndpoints[id], nil))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithModels(cfg.Models),
		app.WithHorizons(horizons),
		app.WithForecasters(forecasters),
		app.WithResolver(res),
		app.WithQualifyPolicy(policy),
		app.WithForecastTimeout(time.Duration(cfg.ForecastTimeoutMS)*time.Millisecond),
		app.WithGuardSize(cfg.GuardSize),
		app.WithPlannedRounds(cfg.PlannedRounds),
		app.WithPhaseConfig(cfg.Phases),
		app.WithValidityConfig(cfg.Validity),
		app.WithExtensionConfig(cfg.Extension),
		app.WithEnsembleConfig(cfg.Ensemble),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, svc, feed)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}
