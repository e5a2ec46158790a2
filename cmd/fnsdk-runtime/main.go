package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lsm/fnsdk/internal/config"
	"github.com/lsm/fnsdk/internal/kafka"
	"github.com/lsm/fnsdk/internal/observability"
	"github.com/lsm/fnsdk/internal/tracing"
	"github.com/lsm/fnsdk/pkg/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level := new(slog.LevelVar)
	logger := observability.NewLogger("fnsdk-runtime", level)
	slog.SetDefault(logger)

	configPath := os.Getenv("FNSDK_CONFIG")
	if configPath == "" {
		configPath = "/etc/fnsdk/runtime.yaml"
	}

	loader := config.NewLoader(configPath, logger)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(observability.GetLogLevel("", cfg.LogLevel))
	loader.OnChange(func(next *config.Runtime) {
		level.Set(observability.GetLogLevel("", next.LogLevel))
		logger.Info("config reloaded", "log_level", level.Level().String())
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer, shutdownTracing, err := tracing.Setup(ctx, tracing.ConfigFromEnv(cfg.Name), logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	health := observability.NewHealthServer()
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: health.Handler(reg)}
	go func() {
		logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	watchDone := make(chan struct{})
	go func() {
		if err := loader.Watch(watchDone); err != nil {
			logger.Error("config watcher error", "error", err)
		}
	}()

	pool := kafka.NewPool()
	s, runErr := buildSession(cfg, runtime.Echo, deps{logger: logger, metrics: metrics, tracer: tracer, pool: pool})
	if runErr != nil {
		runErr = fmt.Errorf("build session %s: %w", cfg.Name, runErr)
	} else {
		health.SetReady(true)
		runErr = s.Run(ctx)
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
		health.SetReady(false)
	}
	close(watchDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	steps := []shutdownStep{
		{"kafka pool", func(context.Context) error { return pool.Close() }},
		{"http server", httpServer.Shutdown},
		{"tracing", shutdownTracing},
	}
	if s != nil {
		steps = append([]shutdownStep{{"session", s.Shutdown}}, steps...)
	}
	_ = shutdown(shutdownCtx, logger, steps...)

	logger.Info("shutdown complete")
	return runErr
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// shutdown runs every step in order, whether or not earlier ones failed.
func shutdown(ctx context.Context, logger *slog.Logger, steps ...shutdownStep) error {
	var errs []error
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			logger.Error(step.name+" shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}
