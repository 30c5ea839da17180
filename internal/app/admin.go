package app

import (
	"context"

	"github.com/guttosm/rental-manager/internal/circuitbreaker"
	"github.com/guttosm/rental-manager/internal/domain/dto"
	api "github.com/guttosm/rental-manager/internal/http"
	"github.com/guttosm/rental-manager/internal/monitor"
	"github.com/guttosm/rental-manager/internal/pool"
)

var _ api.Admin = (*Components)(nil)

// Stats snapshots every cache, pool and breaker along with the memory monitor.
func (c *Components) Stats(context.Context) dto.StatsResponse {
	stats := dto.StatsResponse{
		QueryCache:  c.Database.Cache.Metrics(),
		TextCaches:  c.Services.Text.Metrics(),
		Pools:       []pool.Stats{c.Database.Pool.Stats()},
		ObjectPools: c.Services.ObjectPoolStats(),
		Breakers:    []circuitbreaker.Stats{c.Database.Breaker.GetStats()},
		Extractor: dto.LoaderStatus{
			Name:   c.Services.Extractor.Name(),
			Loaded: c.Services.Extractor.Loaded(),
		},
	}
	if c.Services.Mail != nil {
		stats.Pools = append(stats.Pools, c.Services.Mail.Pool().Stats())
	}
	if c.Monitor != nil {
		stats.Memory = c.Monitor.Stats()
	}
	if c.Samples != nil {
		stats.Breakers = append(stats.Breakers, c.Samples.Breaker.GetStats())
		r := c.Samples.Recorder.Stats()
		stats.Recorder = &dto.RecorderStatus{
			Enqueued: r.Enqueued,
			Dropped:  r.Dropped,
			Written:  r.Written,
			Errors:   r.Errors,
		}
	}
	return stats
}

// InvalidateKey removes one query cache entry.
func (c *Components) InvalidateKey(key string) bool {
	return c.Database.Cache.Invalidate(key)
}

// InvalidatePrefix removes every query cache entry under prefix.
func (c *Components) InvalidatePrefix(prefix string) int {
	return c.Database.Cache.InvalidatePrefix(prefix)
}

// Cleanup runs the memory cleanup hooks now.
func (c *Components) Cleanup(ctx context.Context) (monitor.Sample, int64, error) {
	if c.Monitor == nil {
		return monitor.Sample{}, 0, api.ErrUnavailable
	}
	after, err := c.Monitor.Cleanup(ctx)
	if err != nil {
		return monitor.Sample{}, 0, err
	}
	return after, c.Monitor.Stats().Cleanups, nil
}
