// Package app wires the gateway: backend clients, validator, aggregator,
// HTTP routes and middleware.
package app

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliamunaev/movie-composite-gateway/internal/aggregate"
	"github.com/iliamunaev/movie-composite-gateway/internal/config"
	"github.com/iliamunaev/movie-composite-gateway/internal/middleware"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/catalog"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/reviews"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/users"
	httptransport "github.com/iliamunaev/movie-composite-gateway/internal/transport/http"
	"github.com/iliamunaev/movie-composite-gateway/internal/validate"
)

// MetricsPath serves the Prometheus metrics when a registry is configured.
const MetricsPath = "/metrics"

// Options are the process-level collaborators of an App.
type Options struct {
	Logger observability.Logger
	// Registry receives the gateway collectors and is served on MetricsPath.
	// Nil disables metrics.
	Registry       *prometheus.Registry
	TracerProvider trace.TracerProvider
	// Propagator carries the trace context across the gateway. Nil means
	// the global propagator.
	Propagator propagation.TextMapPropagator
	// Transport is used for every backend call. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// App is a fully wired gateway.
type App struct {
	Users      *users.Client
	Catalog    *catalog.Client
	Reviews    *reviews.Client
	Validator  *validate.Validator
	Aggregator *aggregate.Service
	Metrics    *observability.Metrics

	// Handler serves every route, wrapped in the middleware chain.
	Handler http.Handler
}

// New builds an App from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	var metrics *observability.Metrics
	if opts.Registry != nil {
		metrics = observability.NewMetrics(opts.Registry)
	}

	newUpstream := func(name string, b config.BackendConfig) *upstream.Client {
		return upstream.New(upstream.Config{
			Name:           name,
			BaseURL:        b.BaseURL,
			Timeout:        b.Timeout.Duration(),
			MaxInFlight:    b.MaxInFlight,
			Transport:      opts.Transport,
			Logger:         logger,
			Metrics:        metrics,
			TracerProvider: opts.TracerProvider,
			Propagator:     opts.Propagator,
		})
	}

	a := &App{
		Users:   users.New(newUpstream(users.Name, cfg.Users)),
		Catalog: catalog.New(newUpstream(catalog.Name, cfg.Catalog)),
		Reviews: reviews.New(newUpstream(reviews.Name, cfg.Reviews)),
		Metrics: metrics,
	}
	a.Validator = validate.New(a.Catalog, a.Users,
		validate.WithLogger(logger),
		validate.WithMetrics(metrics),
	)
	a.Aggregator = aggregate.New(a.Catalog, a.Reviews,
		aggregate.WithLogger(logger),
		aggregate.WithMetrics(metrics),
		aggregate.WithTracerProvider(opts.TracerProvider),
	)

	h := httptransport.New(httptransport.Deps{
		Users:      a.Users,
		Catalog:    a.Catalog,
		Reviews:    a.Reviews,
		Validator:  a.Validator,
		Aggregator: a.Aggregator,
		Logger:     logger,
	})

	router := mux.NewRouter()
	router.NotFoundHandler = httptransport.NotFound()
	router.MethodNotAllowedHandler = httptransport.MethodNotAllowed()
	router.Use(middleware.Tracing(opts.TracerProvider, opts.Propagator))
	if metrics != nil {
		router.Use(middleware.Metrics(metrics))
		router.Handle(MetricsPath, promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	h.Register(router)

	a.Handler = middleware.Chain(router,
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.CORS(cfg.CORS.AllowOrigins),
		middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger),
	)
	return a, nil
}
