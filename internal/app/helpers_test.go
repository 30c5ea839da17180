package app

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/guttosm/rental-manager/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSampler reports a settable resident size.
type fakeSampler struct {
	rss atomic.Uint64
}

func (s *fakeSampler) ResidentBytes() (uint64, error) {
	return s.rss.Load(), nil
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.CacheDir = dir
	cfg.Database.Path = filepath.Join(dir, "rental.db")
	cfg.Database.Mongo.Enabled = false
	cfg.ConnectionPoolSize = 2
	cfg.Memory.MonitoringEnabled = true
	cfg.Memory.LimitMB = 100
	cfg.Memory.Interval = time.Hour
	cfg.Log.Level = "error"
	return cfg
}

func newTestComponents(t *testing.T, cfg *config.Config) (*Components, *fakeSampler) {
	t.Helper()
	sampler := &fakeSampler{}
	sampler.rss.Store(10 << 20)

	c, err := New(context.Background(), cfg, Options{Sampler: sampler})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, sampler
}
