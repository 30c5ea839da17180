package app

import (
	"github.com/guttosm/rental-manager/config"
	"github.com/guttosm/rental-manager/internal/logger"
)

// InitializeLogger configures the global logger from the log settings.
func InitializeLogger(cfg config.LogConfig) {
	logger.Init(cfg.Level, cfg.Pretty)
}
