package app

import (
	"github.com/rs/zerolog"

	"github.com/guttosm/rental-manager/config"
	"github.com/guttosm/rental-manager/internal/logger"
)

// applyReload applies the settings that can change without a restart:
// the log level, the default query cache TTL and the cleanup threshold.
// Everything else needs a restart.
func (c *Components) applyReload(next *config.Config) {
	log := logger.Component("reload")

	c.mu.Lock()
	prev := c.live
	c.live = *next
	c.mu.Unlock()

	if level := logger.ParseLevel(next.Log.Level); level != zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
		log.Info().Str("level", level.String()).Msg("Log level changed")
	}

	if next.CacheTTLSeconds > 0 && next.CacheTTLSeconds != prev.CacheTTLSeconds {
		c.Database.Cache.SetDefaultTTL(next.CacheTTL())
		log.Info().Dur("ttl", next.CacheTTL()).Msg("Query cache TTL changed")
	}

	if c.Monitor != nil && next.Memory.CleanupThreshold != c.Monitor.Threshold() {
		if err := c.Monitor.SetThreshold(next.Memory.CleanupThreshold); err != nil {
			log.Warn().Err(err).Msg("Ignoring cleanup threshold")
		} else {
			log.Info().Float64("threshold", next.Memory.CleanupThreshold).Msg("Cleanup threshold changed")
		}
	}
}
