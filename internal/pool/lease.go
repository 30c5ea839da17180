package pool

import (
	"sync/atomic"
	"time"
)

// Lease is exclusive ownership of one pooled connection.
type Lease[C any] struct {
	ID         string
	AcquiredAt time.Time

	pool     *Pool[C]
	conn     *conn[C]
	broken   error
	released atomic.Bool
}

// Conn returns the leased connection. It must not be used after Release.
func (l *Lease[C]) Conn() C {
	return l.conn.handle
}

// MarkBroken records a backend failure; the connection is discarded on
// release instead of returning to the pool.
func (l *Lease[C]) MarkBroken(err error) {
	if err == nil {
		err = ErrBackendUnhealthy
	}
	l.broken = err
}

// Broken reports whether the lease was marked broken.
func (l *Lease[C]) Broken() bool {
	return l.broken != nil
}

// Release returns the connection to its pool.
func (l *Lease[C]) Release() {
	l.pool.Release(l)
}
