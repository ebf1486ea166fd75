package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fabfab/ragconsole/archive"
	"github.com/fabfab/ragconsole/backend"
	"github.com/fabfab/ragconsole/chat"
	"github.com/fabfab/ragconsole/config"
	"github.com/fabfab/ragconsole/database"
	"github.com/fabfab/ragconsole/ingestion"
	"github.com/fabfab/ragconsole/knowledge"
	"github.com/fabfab/ragconsole/logging"
	"github.com/fabfab/ragconsole/metrics"
	"github.com/fabfab/ragconsole/session"
)

// app holds one session and the controllers acting on it.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	session  *session.Session
	client   *backend.Client
	registry *prometheus.Registry
	ingest   *ingestion.Controller
	query    *chat.Controller

	pool    *pgxpool.Pool
	driver  neo4j.DriverWithContext
	archive *archive.PostgresRecorder
	graph   *knowledge.GraphRecorder
}

// loadConfig validates once, after flags override the environment.
func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Read(".env")
	if err != nil {
		return config.Config{}, err
	}
	if opts.backendURL != "" {
		cfg.BackendURL = opts.backendURL
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newApp wires the session, backend client and controllers. The Postgres
// archive and Neo4j citation graph are attached when configured.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		session:  session.New(session.WithStalePolicy(session.StalePolicy(cfg.StalePolicy))),
		client:   backend.NewClient(cfg.BackendURL, backend.WithTimeout(cfg.RequestTimeout), backend.WithLogger(logger)),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorders, err := a.openStores(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	m := metrics.New(a.registry)
	a.ingest = ingestion.NewController(a.client, a.session,
		ingestion.WithRecorder(recorders),
		ingestion.WithMetrics(m),
		ingestion.WithLogger(logger.Named("ingestion")))
	a.query = chat.NewController(a.client, a.session,
		chat.WithRecorder(recorders),
		chat.WithMetrics(m),
		chat.WithLogger(logger.Named("query")))

	logger.Debug("session ready",
		zap.String("backend", a.client.BaseURL()),
		zap.String("stale_policy", string(a.session.Policy())),
		zap.Bool("archive", a.archive != nil),
		zap.Bool("graph", a.graph != nil))
	return a, nil
}

func (a *app) openStores(ctx context.Context) (archive.Recorder, error) {
	var recorders archive.Multi

	if a.cfg.ArchiveEnabled() {
		pool, err := database.NewPostgresPool(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.pool = pool
		if err := database.EnsureArchiveSchema(ctx, pool); err != nil {
			return nil, err
		}
		a.archive = archive.NewPostgresRecorder(pool, a.logger.Named("archive"))
		recorders = append(recorders, a.archive)
	}

	if a.cfg.GraphEnabled() {
		driver, err := database.NewNeo4jDriver(ctx, a.cfg.Neo4jURI, a.cfg.Neo4jUser, a.cfg.Neo4jPass)
		if err != nil {
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		a.driver = driver
		a.graph = knowledge.NewGraphRecorder(driver)
		recorders = append(recorders, a.graph)
	}

	if len(recorders) == 0 {
		return archive.Nop{}, nil
	}
	return recorders, nil
}

func (a *app) Close(ctx context.Context) {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.driver != nil {
		if err := a.driver.Close(ctx); err != nil {
			a.logger.Warn("close neo4j driver", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
