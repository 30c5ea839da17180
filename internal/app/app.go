// Package app wires configuration, storage, services, the memory monitor
// and the admin API into one runtime.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/guttosm/rental-manager/config"
	api "github.com/guttosm/rental-manager/internal/http"
	"github.com/guttosm/rental-manager/internal/monitor"
)

// closeTimeout bounds the MongoDB disconnect during Close.
const closeTimeout = 10 * time.Second

// Options customizes New.
type Options struct {
	// ConfigPath enables hot reloading of the file it names.
	ConfigPath string
	// Sampler overrides the memory sampler.
	Sampler monitor.Sampler
}

// Components is the assembled runtime. It implements the admin API.
type Components struct {
	Config   *config.Config
	Database *DatabaseComponents
	// Samples is nil when sample persistence is disabled or unreachable.
	Samples  *SampleComponents
	Services *ServiceComponents
	// Monitor is nil when memory monitoring is disabled.
	Monitor *monitor.Monitor
	Handler *api.Handler
	Health  *api.HealthHandler
	Router  *gin.Engine

	watcher   *config.Watcher
	mu        sync.Mutex
	live      config.Config
	closeOnce sync.Once
	closeErr  error
}

// New creates and wires all application components. Nothing runs in the
// background until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Components, error) {
	InitializeLogger(cfg.Log)

	db, err := InitializeDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mon, err := InitializeMonitor(cfg, opts.Sampler)
	if err != nil {
		_ = services.Close()
		_ = db.Close()
		return nil, err
	}

	c := &Components{
		Config:   cfg,
		Database: db,
		Samples:  InitializeSampleStore(ctx, cfg.Database),
		Services: services,
		Monitor:  mon,
		live:     *cfg,
	}
	c.Handler = api.NewHandler(c, nil)
	c.Health = c.InitializeHealth()
	c.Router = InitializeRouter(cfg, c.Handler, c.Health)

	if c.Monitor != nil {
		c.registerCleanupHooks()
	}

	if opts.ConfigPath != "" {
		w, err := config.NewWatcher(opts.ConfigPath, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Configuration hot reloading disabled")
		} else {
			w.OnChange(c.applyReload)
			c.watcher = w
		}
	}

	return c, nil
}

// Start begins background memory monitoring. It stops when ctx is cancelled
// or on Close.
func (c *Components) Start(ctx context.Context) {
	if c.Monitor != nil {
		c.Monitor.Start(ctx)
	}
}

// Run starts the components and serves the admin API until ctx is cancelled.
func (c *Components) Run(ctx context.Context) error {
	c.Start(ctx)
	server := NewServer(c.Router, c.Config.Server.Port, c.Config.Server.ShutdownTimeout)
	return server.Run(ctx)
}

// Close stops background work and releases every backend. Safe to call
// more than once.
func (c *Components) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.watcher != nil {
			errs = append(errs, c.watcher.Close())
		}
		if c.Monitor != nil {
			c.Monitor.Stop()
		}
		if c.Samples != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			errs = append(errs, c.Samples.Close(ctx))
			cancel()
		}
		errs = append(errs, c.Services.Close(), c.Database.Close())
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
