package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"candidate-service/common/logger"
	"candidate-service/common/metrics"
	"candidate-service/common/telemetry"
	"candidate-service/internal/candidate"
	"candidate-service/internal/config"
	"candidate-service/internal/db"
	"candidate-service/internal/health"
	"candidate-service/internal/kafka"
	"candidate-service/internal/messaging"
	candidatemetrics "candidate-service/internal/metrics"
	"candidate-service/internal/middleware"
	"candidate-service/internal/retention"
	"candidate-service/internal/upload"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var createdAtIndex = db.Index{
	Model:   (*candidate.Candidate)(nil),
	Name:    "idx_candidates_created_at",
	Columns: []string{"created_at"},
}

type App struct {
	config    *config.Config
	router    chi.Router
	server    *http.Server
	logger    *slog.Logger
	db        *bun.DB
	telemetry *telemetry.Telemetry
	sweeper   *retention.Sweeper
	closers   []io.Closer
}

// New loads configuration, connects to Postgres and wires the service.
func New(ctx context.Context) (*App, error) {
	slogLogger := logger.NewWithServiceContext(ServiceName, Version)

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)

	slogLogger.Info("initializing application", "version", Version, "commit", GitCommit, "build_time", BuildTime)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger.Info("config loaded", "env", cfg.Env)

	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	}, slogLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		tel.Shutdown(ctx)
		return nil, err
	}
	if err := tel.Metrics.Database.RegisterDB(database.DB, tel.Metrics.Meter()); err != nil {
		slogLogger.Warn("failed to register db pool metrics", "error", err)
	}

	app, err := NewWithDB(ctx, cfg, slogLogger, database, tel.Metrics)
	if err != nil {
		db.Close(database)
		tel.Shutdown(ctx)
		return nil, err
	}
	app.telemetry = tel
	return app, nil
}

// NewWithDB wires the service on an existing connection. The App owns database afterwards.
func NewWithDB(ctx context.Context, cfg *config.Config, slogLogger *slog.Logger, database *bun.DB, m *metrics.Metrics) (*App, error) {
	if err := db.RunMigrations(ctx, database, []interface{}{(*candidate.Candidate)(nil)}, createdAtIndex); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	candidateMetrics, err := candidatemetrics.New(m.Meter())
	if err != nil {
		slogLogger.Warn("failed to register candidate metrics", "error", err)
		candidateMetrics = candidatemetrics.NewMock()
	}

	store := upload.NewStore(upload.Config{
		Dir:          cfg.Uploads.Dir,
		PublicPrefix: cfg.Uploads.PublicPrefix,
		MaxBytes:     cfg.Uploads.MaxFileBytes,
	}, slogLogger)
	if err := store.EnsureDir(); err != nil {
		return nil, err
	}
	slogLogger.Info("upload storage ready", "dir", store.Dir(), "public_prefix", store.PublicPrefix())

	app := &App{
		config: cfg,
		router: chi.NewRouter(),
		logger: slogLogger,
		db:     database,
	}

	publisher := app.newPublisher(m)

	validator := candidate.NewValidator(candidate.Policy{
		AllowedDomains:        cfg.Validation.AllowedDomains,
		RequireWorkExperience: cfg.Validation.RequireWorkExperience,
		EnforceEducation:      cfg.Validation.EnforceEducation,
	})
	candidateRepo := candidate.NewRepository(database, m)
	candidateService := candidate.NewService(candidateRepo, store, validator, publisher, slogLogger, candidateMetrics)
	candidateHandler := candidate.NewHandler(candidateService, store.MaxBytes(), slogLogger, candidateMetrics)

	checks := []health.Check{
		{Name: "database", Check: candidateRepo.Ping},
		{Name: "uploads", Check: func(context.Context) error { return store.EnsureDir() }},
	}
	if p, ok := publisher.(*messaging.Producer); ok {
		checks = append(checks, health.Check{Name: "nats", Check: p.Ping})
	}
	healthHandler := health.NewHandler(slogLogger, m, checks...)
	if err := m.Health.RegisterDependencies(ctx, m.Meter(), healthHandler.Names()); err != nil {
		slogLogger.Warn("failed to register dependency metrics", "error", err)
	}

	if cfg.Retention.Enabled {
		app.sweeper = retention.NewSweeper(candidateRepo, store, retention.Config{
			MaxAge:   time.Duration(cfg.Retention.Days) * 24 * time.Hour,
			Interval: time.Duration(cfg.Retention.IntervalMinutes) * time.Minute,
		}, slogLogger, candidateMetrics)
	}

	app.router.Use(chimiddleware.RequestID)
	app.router.Use(chimiddleware.RealIP)
	app.router.Use(middleware.RequestLogger(slogLogger, m))
	app.router.Use(middleware.Recoverer(slogLogger))
	app.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	healthHandler.RegisterRoutes(app.router)
	candidateHandler.RegisterRoutes(app.router)

	prefix := strings.TrimSuffix(store.PublicPrefix(), "/")
	app.router.Handle(prefix+"/*", http.StripPrefix(prefix+"/", storedFiles(store.Dir())))

	slogLogger.Info("application initialized successfully")
	return app, nil
}

// newPublisher picks the event broker. An unreachable broker disables events
// instead of failing startup. The result is a nil interface, never a typed nil.
func (a *App) newPublisher(m *metrics.Metrics) candidate.Publisher {
	switch a.config.Events.Driver {
	case "nats":
		producer, err := messaging.NewProducer(a.config.NATS.URL, a.config.NATS.Subject, a.logger, m)
		if err != nil {
			a.logger.Warn("failed to initialize NATS producer, events disabled", "error", err)
			return nil
		}
		a.closers = append(a.closers, producer)
		a.logger.Info("NATS producer initialized successfully", "subject", a.config.NATS.Subject)
		return producer
	case "kafka":
		producer, err := kafka.NewProducer(a.config.Kafka.Brokers, a.config.Kafka.Topic, a.logger, m)
		if err != nil {
			a.logger.Warn("failed to initialize Kafka producer, events disabled", "error", err)
			return nil
		}
		a.closers = append(a.closers, producer)
		a.logger.Info("Kafka producer initialized successfully", "topic", a.config.Kafka.Topic)
		return producer
	default:
		a.logger.Info("candidate events disabled")
		return nil
	}
}

// storedFiles serves saved CVs by name. Directory listings and dot files
// (in-flight uploads) are not exposed.
func storedFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves HTTP and, when enabled, the retention sweeper until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.sweeper != nil {
		g.Go(func() error {
			return a.sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases brokers, the database and telemetry. Call it after Run returns.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
