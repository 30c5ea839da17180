package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/guttosm/rental-manager/internal/pool"
)

// SQLiteConfig holds SQLite store configuration.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" is not supported because each
	// pooled connection would see its own database.
	Path string
	// MaxConns matches the connection pool size.
	MaxConns int
}

// SQLite owns the database handle behind the connection pool.
type SQLite struct {
	DB   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at cfg.Path.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 1
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	dsn := cfg.Path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The connection pool above holds dedicated *sql.Conn handles, so
	// database/sql never needs more than that.
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLite{DB: db, path: cfg.Path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// PoolConfig returns a connection pool configuration that hands out
// dedicated connections from this database.
func (s *SQLite) PoolConfig(name string, size int) pool.Config[*sql.Conn] {
	return pool.Config[*sql.Conn]{
		Name:    name,
		MaxSize: size,
		Factory: func(ctx context.Context) (*sql.Conn, error) {
			conn, err := s.DB.Conn(ctx)
			if err != nil {
				return nil, classify(err)
			}
			return conn, nil
		},
		Close: func(conn *sql.Conn) error {
			return conn.Close()
		},
		HealthCheck: func(conn *sql.Conn) error {
			return conn.Raw(func(driverConn interface{}) error {
				if v, ok := driverConn.(driver.Validator); ok && !v.IsValid() {
					return driver.ErrBadConn
				}
				return nil
			})
		},
	}
}

// HealthCheck verifies the database answers.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.DB.Close()
}

// classify marks errors that mean the connection or database is unusable
// as backend failures. Query errors such as syntax errors or constraint
// violations pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return pool.Unhealthy(err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
			return pool.Unhealthy(err)
		}
	}
	return err
}
