package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guttosm/rental-manager/config"
	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/circuitbreaker"
	"github.com/guttosm/rental-manager/internal/pipeline"
	"github.com/guttosm/rental-manager/internal/pool"
	"github.com/guttosm/rental-manager/internal/repository"
	"github.com/guttosm/rental-manager/internal/service"
)

// queryCacheCleanupInterval is how often the query cache purges expired rows.
const queryCacheCleanupInterval = time.Minute

// DatabaseComponents holds the SQLite query path.
type DatabaseComponents struct {
	SQLite  *repository.SQLite
	Pool    *pool.Pool[*sql.Conn]
	Cache   *cache.TTLCache[[]repository.Row]
	Breaker *circuitbreaker.CircuitBreaker
	Querier *repository.Querier
}

// InitializeDatabase opens the SQLite store and builds the pooled, cached
// query path on top of it.
func InitializeDatabase(ctx context.Context, cfg *config.Config) (*DatabaseComponents, error) {
	db, err := repository.OpenSQLite(ctx, repository.SQLiteConfig{
		Path:     cfg.Database.Path,
		MaxConns: cfg.ConnectionPoolSize,
	})
	if err != nil {
		return nil, err
	}

	connPool, err := pool.New(db.PoolConfig("sqlite", cfg.ConnectionPoolSize))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}

	queryCache := cache.NewTTLCache[[]repository.Row](cache.TTLConfig{
		Name:            "queries",
		DefaultTTL:      cfg.CacheTTL(),
		Capacity:        cfg.CacheCapacity,
		CleanupInterval: queryCacheCleanupInterval,
	})

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Database.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.Database.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.Database.CircuitBreakerTimeout,
		Name:             "sqlite",
		IsFailure:        pool.IsBackendError,
	})

	querier := repository.NewQuerier(connPool, queryCache, breaker, repository.QuerierConfig{
		AcquireTimeout: cfg.Database.AcquireTimeout,
		Retry:          pipeline.DefaultRetryPolicy(),
	})

	log.Info().
		Str("path", db.Path()).
		Int("pool_size", cfg.ConnectionPoolSize).
		Dur("cache_ttl", cfg.CacheTTL()).
		Msg("SQLite query path ready")

	return &DatabaseComponents{
		SQLite:  db,
		Pool:    connPool,
		Cache:   queryCache,
		Breaker: breaker,
		Querier: querier,
	}, nil
}

// Close releases the cache janitor, the pooled connections and the database.
func (d *DatabaseComponents) Close() error {
	d.Cache.Stop()
	return errors.Join(d.Pool.Close(), d.SQLite.Close())
}

// SampleComponents holds MongoDB sample persistence.
type SampleComponents struct {
	Mongo    *repository.MongoDB
	Breaker  *circuitbreaker.CircuitBreaker
	Recorder *service.SampleRecorder
}

// InitializeSampleStore connects to MongoDB and starts the sample recorder.
// Returns nil when persistence is disabled or the connection fails; the
// service runs without it.
func InitializeSampleStore(ctx context.Context, cfg config.DatabaseConfig) *SampleComponents {
	if !cfg.Mongo.Enabled {
		return nil
	}

	db, err := repository.NewMongoDB(cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MongoDB - continuing without sample persistence")
		return nil
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("Connected to MongoDB")

	if cfg.Mongo.SamplesTTL > 0 {
		if err := db.SetSamplesTTL(ctx, cfg.Mongo.SamplesTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to set samples TTL index")
		}
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Name:             "mongodb-samples",
	})
	repo := repository.NewSamplesRepositoryWithCircuitBreaker(repository.NewSamplesRepository(db), breaker)

	return &SampleComponents{
		Mongo:    db,
		Breaker:  breaker,
		Recorder: service.NewSampleRecorder(repo, service.DefaultRecorderConfig()),
	}
}

// Close drains the recorder and disconnects from MongoDB.
func (s *SampleComponents) Close(ctx context.Context) error {
	s.Recorder.Stop()
	return s.Mongo.Close(ctx)
}
