package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/circuitbreaker"
	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/pipeline"
	"github.com/guttosm/rental-manager/internal/pool"
)

// queryNamespace prefixes every cached query key.
const queryNamespace = "sql"

// Row is one result row keyed by column name.
type Row map[string]interface{}

// QuerierConfig holds Querier configuration.
type QuerierConfig struct {
	// AcquireTimeout bounds the wait for a pooled connection.
	AcquireTimeout time.Duration
	// Retry controls retries of backend failures.
	Retry pipeline.RetryPolicy
}

// Querier runs SQL through the query cache and the connection pool.
// Reads are memoized under a fingerprint namespaced by the table they read;
// writes go straight to the pool and invalidate that table's namespace.
type Querier struct {
	pool    *pool.Pool[*sql.Conn]
	cache   *cache.TTLCache[[]Row]
	breaker *circuitbreaker.CircuitBreaker
	cfg     QuerierConfig
}

// NewQuerier creates a Querier.
func NewQuerier(p *pool.Pool[*sql.Conn], c *cache.TTLCache[[]Row], cb *circuitbreaker.CircuitBreaker, cfg QuerierConfig) *Querier {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry = pipeline.DefaultRetryPolicy()
	}
	return &Querier{pool: p, cache: c, breaker: cb, cfg: cfg}
}

// Query runs a read with the cache's default TTL.
func (q *Querier) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	return q.QueryTTL(ctx, 0, query, args...)
}

// QueryTTL runs a read whose result is cached for ttl.
//
// When the cache path fails for a reason other than the backend, the read
// is retried once without the cache.
func (q *Querier) QueryTTL(ctx context.Context, ttl time.Duration, query string, args ...interface{}) ([]Row, error) {
	key := QueryKey(query, args...)

	call := pipeline.Chain(
		q.read(query, args),
		pipeline.Traced[[]Row]("repository.query"),
		pipeline.Cached(q.cache, key, ttl),
		pipeline.Breaker[[]Row](q.breaker),
		pipeline.Retry[[]Row](q.cfg.Retry),
	)

	rows, err := call(ctx)
	if err == nil {
		return rows, nil
	}
	if errors.Is(err, cache.ErrCompute) && !pool.IsBackendError(err) && !errors.Is(err, circuitbreaker.ErrCircuitOpen) && ctx.Err() == nil {
		log := logger.Component("repository")
		log.Warn().Err(err).Str("key", key).Msg("Cached read failed, retrying uncached")
		return q.QueryUncached(ctx, query, args...)
	}
	return nil, err
}

// QueryUncached runs a read without touching the cache.
func (q *Querier) QueryUncached(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	call := pipeline.Chain(
		q.read(query, args),
		pipeline.Breaker[[]Row](q.breaker),
		pipeline.Retry[[]Row](q.cfg.Retry),
	)
	return call(ctx)
}

// Exec runs a write and invalidates cached reads of the table it touches.
// It returns the last insert id when one was generated, otherwise the
// number of affected rows.
func (q *Querier) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ids, err := q.ExecBatch(ctx, query, [][]interface{}{args})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// ExecBatch runs the same write once per argument list inside one
// transaction. Cached reads of the table are invalidated once the batch
// commits.
func (q *Querier) ExecBatch(ctx context.Context, query string, argsList [][]interface{}) ([]int64, error) {
	if len(argsList) == 0 {
		return nil, nil
	}

	call := pipeline.Chain(
		pipeline.Pooled(q.pool, q.cfg.AcquireTimeout, func(ctx context.Context, conn *sql.Conn) ([]int64, error) {
			ids, err := execBatch(ctx, conn, query, argsList)
			return ids, classify(err)
		}),
		pipeline.Traced[[]int64]("repository.exec"),
		pipeline.Breaker[[]int64](q.breaker),
	)

	ids, err := call(ctx)
	if err != nil {
		return nil, err
	}
	q.invalidate(query)
	return ids, nil
}

// Invalidate drops cached reads of table, or every cached read when table
// is empty. It returns how many entries were removed.
func (q *Querier) Invalidate(table string) int {
	if table == "" {
		return q.cache.InvalidatePrefix(cache.Namespace(queryNamespace))
	}
	return q.cache.InvalidatePrefix(tableNamespace(table))
}

// Cache returns the query cache.
func (q *Querier) Cache() *cache.TTLCache[[]Row] {
	return q.cache
}

// Pool returns the connection pool.
func (q *Querier) Pool() *pool.Pool[*sql.Conn] {
	return q.pool
}

func (q *Querier) read(query string, args []interface{}) pipeline.Func[[]Row] {
	return pipeline.Pooled(q.pool, q.cfg.AcquireTimeout, func(ctx context.Context, conn *sql.Conn) ([]Row, error) {
		rows, err := scanRows(ctx, conn, query, args)
		return rows, classify(err)
	})
}

func (q *Querier) invalidate(query string) {
	table := TableName(query)
	removed := q.Invalidate(table)

	log := logger.Component("repository")
	log.Debug().
		Str("table", table).
		Int("removed", removed).
		Msg("Invalidated cached reads after write")
}

// QueryKey returns the cache key for a read: the fingerprint of the query
// and its arguments, namespaced by the table it reads.
func QueryKey(query string, args ...interface{}) string {
	table := TableName(query)
	if table == "" {
		table = "_"
	}
	return cache.Fingerprint(queryNamespace+":"+table, query, args)
}

func tableNamespace(table string) string {
	return cache.Namespace(queryNamespace + ":" + strings.ToLower(table))
}

var tablePattern = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?(?:select\b.*?\bfrom|insert\s+(?:or\s+\w+\s+)?into|replace\s+into|update(?:\s+or\s+\w+)?|delete\s+from)\s+["'\x60\[]?([A-Za-z_][A-Za-z0-9_]*)`)

// TableName returns the lower-cased name of the first table a statement
// reads or writes, or "" when it cannot tell.
func TableName(query string) string {
	m := tablePattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func scanRows(ctx context.Context, conn *sql.Conn, query string, args []interface{}) ([]Row, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return result, nil
}

func execBatch(ctx context.Context, conn *sql.Conn, query string, argsList [][]interface{}) (ids []int64, err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserts := isInsert(query)
	ids = make([]int64, 0, len(argsList))
	for _, args := range argsList {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, fmt.Errorf("exec: %w", err)
		}
		var id int64
		if inserts {
			id, _ = res.LastInsertId()
		}
		if id == 0 {
			id, _ = res.RowsAffected()
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func isInsert(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(q, "insert") || strings.HasPrefix(q, "replace")
}
