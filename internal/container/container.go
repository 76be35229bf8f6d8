package container

import (
	"context"
	"fmt"

	"bootfit/adapters/badger"
	"bootfit/adapters/optimizer"
	"bootfit/adapters/postgres"
	"bootfit/adapters/reaction"
	"bootfit/app"
	"bootfit/internal"
	"bootfit/internal/config"
	"bootfit/internal/errors"
	"bootfit/internal/metrics"
	"bootfit/internal/migration"
	"bootfit/internal/testkit"
	"bootfit/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB       *sqlx.DB
	Registry *prometheus.Registry

	Store   ports.ResultStore
	Metrics *metrics.BootstrapMetrics
	Service *app.BootstrapService

	closers []func() error
}

// New creates the container and opens the configured result store
func New(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))
	}
	c := &Container{Config: cfg, Logger: logger}

	if err := c.initStore(ctx); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	if err := c.initMetrics(); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	if err := c.initService(); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}

	logger.Info("container initialized with %s store", cfg.Store.Backend)
	return c, nil
}

func (c *Container) initStore(ctx context.Context) error {
	switch c.Config.Store.Backend {
	case config.BackendBadger:
		bcfg := badger.DefaultConfig(c.Config.Store.BadgerDir)
		bcfg.Logger = c.Logger
		store, err := badger.Open(bcfg)
		if err != nil {
			return err
		}
		c.Store = store
		c.closers = append(c.closers, store.Close)
	case config.BackendPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
		if err != nil {
			return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to connect to database")
		}
		c.DB = db
		c.closers = append(c.closers, db.Close)
		if err := migration.NewRunner().Run(ctx, db); err != nil {
			return errors.Wrap(err, "database migration failed")
		}
		c.Store = postgres.NewResultRepository(db)
	case config.BackendMemory:
		c.Logger.Warn("using the in-memory result store; results are lost on exit")
		c.Store = testkit.NewInMemoryResultStore()
	default:
		return errors.ConfigInvalid("unknown store backend " + c.Config.Store.Backend)
	}
	return nil
}

func (c *Container) initMetrics() error {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(c.Registry)
	if err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}
	c.Metrics = m
	return nil
}

func (c *Container) initService() error {
	compression, err := c.Config.Bootstrap.CompressionType()
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	svc, err := app.NewBootstrapService(app.ServiceDeps{
		Engine:        reaction.NewEngine(),
		NewOptimizer:  optimizer.Factory(optimizer.DefaultSettings()),
		Store:         c.Store,
		Config:        c.Config.Bootstrap.EngineConfig(),
		Compression:   compression,
		MaxConcurrent: c.Config.Server.MaxConcurrent,
		Metrics:       c.Metrics,
		Logger:        c.Logger,
	})
	if err != nil {
		return err
	}
	c.Service = svc
	return nil
}

// Shutdown closes the store and database in reverse order of opening
func (c *Container) Shutdown(ctx context.Context) error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
