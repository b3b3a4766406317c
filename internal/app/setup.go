// Package app wires the storefront components into servers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/pricing"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	pnats "github.com/abgdnv/storefront/pkg/nats"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const meterName = "github.com/abgdnv/storefront"

// Infra holds the connections opened by main.
type Infra struct {
	Medium    store.Medium
	Publisher messaging.Publisher
	Verifier  auth.Verifier
	Submitter checkout.Submitter
	Catalog   catalog.Finder
	Readiness []rest.ReadinessCheck
}

type Dependencies struct {
	Sessions   *session.Manager
	Catalog    catalog.Finder
	Calculator pricing.Calculator
	Identity   func(http.Handler) http.Handler
	Readiness  rest.ReadinessCheck
	Logger     *slog.Logger
}

// SetupDependencies builds the session manager and request identity from cfg.
// Submitter and Catalog default to HTTP clients of the configured services.
func SetupDependencies(cfg *config.Config, infra Infra, logger *slog.Logger) (*Dependencies, error) {
	calc, err := pricing.ParseCalculator(cfg.Pricing.TaxRate, cfg.Pricing.FlatShipping)
	if err != nil {
		return nil, fmt.Errorf("invalid pricing configuration: %w", err)
	}
	metrics, err := checkout.NewMetrics(otel.Meter(meterName))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout metrics: %w", err)
	}

	submitter := infra.Submitter
	if submitter == nil {
		submitter = checkout.NewHTTPSubmitter(cfg.Orders, cfg.CircuitBreaker, logger)
	}
	finder := infra.Catalog
	if finder == nil {
		finder = catalog.NewClient(cfg.Catalog, cfg.CircuitBreaker, logger)
	}

	opts := []checkout.Option{checkout.WithMetrics(metrics), checkout.WithTimeout(cfg.Orders.Timeout)}
	if infra.Publisher != nil {
		opts = append(opts, checkout.WithPublisher(infra.Publisher))
	}
	sessions := session.NewManager(session.Deps{
		Medium:          infra.Medium,
		Submitter:       submitter,
		Calculator:      calc,
		CheckoutOptions: opts,
		Logger:          logger,
	}, cfg.Session.IdleTimeout)

	identity := web.HeaderIdentity
	if infra.Verifier != nil {
		identity = web.BearerIdentity(infra.Verifier)
	}

	return &Dependencies{
		Sessions:   sessions,
		Catalog:    finder,
		Calculator: calc,
		Identity:   identity,
		Readiness:  Readiness(infra.Readiness...),
		Logger:     logger,
	}, nil
}

// Readiness runs all checks concurrently and fails on the first error.
func Readiness(checks ...rest.ReadinessCheck) rest.ReadinessCheck {
	return func(ctx context.Context) error {
		g, gCtx := errgroup.WithContext(ctx)
		for _, check := range checks {
			g.Go(func() error { return check(gCtx) })
		}
		return g.Wait()
	}
}

// MediumCheck adapts a medium to a readiness check. Media that cannot report health are always ready.
func MediumCheck(m store.Medium) rest.ReadinessCheck {
	return func(ctx context.Context) error {
		if p, ok := m.(store.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("storage: %w", err)
			}
		}
		return nil
	}
}

// SetupHttpHandler initializes the router with the API, probes and metrics.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	mux.Handle("/metrics", promhttp.Handler())
	h := rest.NewHandler(deps.Sessions, deps.Catalog, deps.Calculator, deps.Readiness, deps.Logger)
	h.RegisterRoutes(mux, deps.Identity)
	return otelhttp.NewHandler(mux, "storefront")
}

// SetupHttpServer creates and configures the HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(server.FromConfig(cfg.HTTPServer), SetupHttpHandler(deps))
}

// SetupGrpcServer creates the gRPC server carrying the health service.
func SetupGrpcServer(cfg pkgconfig.GrpcServerConfig) (*grpc.Server, *health.Server) {
	return server.NewGRPCServer(cfg.ReflectionEnabled)
}

// SetupMedium opens the storage selected by cfg.Storage.Driver. The returned func releases it.
// js is required by the nats driver only.
func SetupMedium(ctx context.Context, cfg *config.Config, js jetstream.JetStream, logger *slog.Logger) (store.Medium, func(), error) {
	switch cfg.Storage.Driver {
	case pkgconfig.StorageDriverPostgres:
		if cfg.Storage.Migrate {
			if err := store.Migrate(cfg.Database.URL); err != nil {
				return nil, nil, err
			}
			logger.Info("Database migrations applied")
		}
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		logger.Info("Successfully connected to the database!")
		return store.NewPgStore(dbPool), dbPool.Close, nil
	case pkgconfig.StorageDriverNats:
		if js == nil {
			return nil, nil, fmt.Errorf("storage driver %q requires a JetStream connection", cfg.Storage.Driver)
		}
		kv, err := pnats.KeyValue(ctx, js, cfg.Storage.Bucket)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using JetStream key-value storage", slog.String("bucket", cfg.Storage.Bucket))
		return store.NewNatsKV(kv), func() {}, nil
	default:
		logger.Warn("Using in-memory storage, carts and wishlists will not survive a restart")
		return store.NewInMemory(), func() {}, nil
	}
}
