package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliamunaev/movie-composite-gateway/internal/app"
	"github.com/iliamunaev/movie-composite-gateway/internal/config"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
)

// configPathEnv names the config file when -config is not given.
const configPathEnv = "GATEWAY_CONFIG_PATH"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	envFile    string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", os.Getenv(configPathEnv), "path to the YAML config file")
	fs.StringVar(&f.envFile, "env", ".env", "dotenv file loaded before reading the environment")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

// run loads the configuration, serves until ctx is done and then drains
// in-flight requests within the configured shutdown timeout.
func run(ctx context.Context, args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var tp trace.TracerProvider
	if cfg.Tracing.Enabled {
		sdkTP, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
			ServiceName:  cfg.Tracing.ServiceName,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), observability.DefaultOTLPTimeout)
			defer cancel()
			if err := sdkTP.Shutdown(flushCtx); err != nil {
				logger.Warn("failed to flush spans", observability.Error(err))
			}
		}()
		tp = sdkTP
	}

	a, err := app.New(cfg, app.Options{Logger: logger, Registry: reg, TracerProvider: tp})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}
	srv := newHTTPServer(cfg.Server, a.Handler)

	logger.Info("composite gateway listening",
		observability.String("addr", ln.Addr().String()),
		observability.String("users", cfg.Users.BaseURL),
		observability.String("catalog", cfg.Catalog.BaseURL),
		observability.String("reviews", cfg.Reviews.BaseURL),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", observability.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHTTPServer(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.Duration(),
		WriteTimeout:      cfg.WriteTimeout.Duration(),
		IdleTimeout:       cfg.IdleTimeout.Duration(),
	}
}
