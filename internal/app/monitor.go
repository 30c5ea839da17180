package app

import (
	"context"

	"github.com/guttosm/rental-manager/config"
	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/monitor"
)

// textShrinkFraction is the share of each text cache a cleanup drops.
const textShrinkFraction = 0.5

// InitializeMonitor creates the memory monitor, or returns nil when
// monitoring is disabled. A nil sampler reads /proc.
func InitializeMonitor(cfg *config.Config, sampler monitor.Sampler) (*monitor.Monitor, error) {
	if !cfg.Memory.MonitoringEnabled {
		return nil, nil
	}
	return monitor.New(monitor.Config{
		Interval:     cfg.Memory.Interval,
		Threshold:    cfg.Memory.CleanupThreshold,
		LimitBytes:   cfg.MemoryLimitBytes(),
		HistorySize:  cfg.Memory.HistorySize,
		Sampler:      sampler,
		FreeOSMemory: true,
	})
}

// registerCleanupHooks wires every releasable resource into the monitor.
// Hooks run cheapest first: expired and idle entries go before live ones.
func (c *Components) registerCleanupHooks() {
	m := c.Monitor
	log := logger.Component("cleanup")
	memCfg := c.Config.Memory

	m.RegisterCleanup("query_cache", func(context.Context) {
		purged := c.Database.Cache.Purge()
		trimmed := 0
		if memCfg.IdleTrim > 0 {
			trimmed = c.Database.Cache.TrimIdle(memCfg.IdleTrim)
		}
		log.Debug().Int("expired", purged).Int("idle", trimmed).Msg("Trimmed query cache")
	})

	m.RegisterCleanup("text_caches", func(context.Context) {
		log.Debug().Int("removed", c.Services.Text.Shrink(textShrinkFraction)).Msg("Shrunk text caches")
	})

	m.RegisterCleanup("object_pools", func(context.Context) {
		drained := c.Services.NameSets.Drain() + c.Services.Buffers.Drain() + c.Handler.Pools().Drain()
		log.Debug().Int("drained", drained).Msg("Drained object pools")
	})

	m.RegisterCleanup("connections", func(context.Context) {
		closed := c.Database.Pool.CloseIdle(c.Config.Database.IdleTimeout)
		if c.Services.Mail != nil {
			closed += c.Services.Mail.CleanupIdle()
		}
		log.Debug().Int("closed", closed).Msg("Closed idle connections")
	})

	m.RegisterCleanup("extractor", func(context.Context) {
		if c.Services.Extractor.Unload(nil) {
			log.Debug().Msg("Unloaded text extractor")
		}
	})

	if c.Samples != nil {
		m.OnSample(c.Samples.Recorder.Observe)
	}
}

