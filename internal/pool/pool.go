// Package pool provides a bounded pool of reusable backend connections.
//
// Connections are created lazily up to MaxSize and handed out through leases.
// Each lease is owned by exactly one caller until it is released; releasing a
// lease twice panics because it means the caller's bookkeeping is broken.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/metrics"
)

var (
	// ErrPoolExhausted is returned when no connection frees up before the
	// acquire timeout. Callers may retry with backoff.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrBackendUnhealthy marks failures of the backend itself, as opposed
	// to failures of the work performed on it.
	ErrBackendUnhealthy = errors.New("pool: backend unhealthy")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("pool: closed")
)

// Factory opens a new backend connection.
type Factory[C any] func(ctx context.Context) (C, error)

// Config holds pool configuration.
type Config[C any] struct {
	Name    string
	MaxSize int
	Factory Factory[C]
	// Close releases a connection's backend resources. Optional.
	Close func(C) error
	// HealthCheck runs on release; a failing connection is discarded. Optional.
	HealthCheck func(C) error
	// Now defaults to time.Now.
	Now func() time.Time
}

type conn[C any] struct {
	handle   C
	created  time.Time
	lastUsed time.Time
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Name      string `json:"name"`
	MaxSize   int    `json:"max_size"`
	Idle      int    `json:"idle"`
	InUse     int    `json:"in_use"`
	Created   int64  `json:"created"`
	Discarded int64  `json:"discarded"`
	Acquired  int64  `json:"acquired"`
	Exhausted int64  `json:"exhausted"`
}

// Pool is a bounded set of reusable connections of type C.
type Pool[C any] struct {
	name        string
	maxSize     int
	factory     Factory[C]
	closeFn     func(C) error
	healthCheck func(C) error
	now         func() time.Time

	sem *semaphore.Weighted

	mu     sync.Mutex
	idle   []*conn[C] // LIFO: most recently used at the end
	leases map[string]*Lease[C]
	closed bool

	created   atomic.Int64
	discarded atomic.Int64
	acquired  atomic.Int64
	exhausted atomic.Int64
}

// New creates a pool. No connection is opened until the first Acquire.
func New[C any](cfg Config[C]) (*Pool[C], error) {
	if cfg.Factory == nil {
		return nil, errors.New("pool: factory is required")
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("pool: max size must be positive, got %d", cfg.MaxSize)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pool[C]{
		name:        cfg.Name,
		maxSize:     cfg.MaxSize,
		factory:     cfg.Factory,
		closeFn:     cfg.Close,
		healthCheck: cfg.HealthCheck,
		now:         cfg.Now,
		sem:         semaphore.NewWeighted(int64(cfg.MaxSize)),
		idle:        make([]*conn[C], 0, cfg.MaxSize),
		leases:      make(map[string]*Lease[C]),
	}, nil
}

// Name returns the pool name.
func (p *Pool[C]) Name() string {
	return p.name
}

// Acquire checks out a connection, waiting up to timeout for one to free up.
// A zero timeout tries once without waiting; a negative timeout waits until
// ctx is done. A wait that ends without a connection holds no reservation.
func (p *Pool[C]) Acquire(ctx context.Context, timeout time.Duration) (*Lease[C], error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	start := time.Now()
	if err := p.reserve(ctx, timeout); err != nil {
		return nil, err
	}
	metrics.RecordPoolAcquire(p.name, time.Since(start))

	c, err := p.take(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	lease := &Lease[C]{
		ID:         uuid.NewString(),
		pool:       p,
		conn:       c,
		AcquiredAt: p.now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.discard(c, "closed")
		p.sem.Release(1)
		return nil, ErrClosed
	}
	p.leases[lease.ID] = lease
	idle, inUse := len(p.idle), len(p.leases)
	p.mu.Unlock()

	p.acquired.Add(1)
	metrics.UpdatePoolConnections(p.name, idle, inUse)
	return lease, nil
}

func (p *Pool[C]) reserve(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		if !p.sem.TryAcquire(1) {
			p.exhausted.Add(1)
			metrics.RecordPoolAcquireFailure(p.name, "exhausted")
			return ErrPoolExhausted
		}
		return nil
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			metrics.RecordPoolAcquireFailure(p.name, "cancelled")
			return ctx.Err()
		}
		p.exhausted.Add(1)
		metrics.RecordPoolAcquireFailure(p.name, "timeout")
		return ErrPoolExhausted
	}
	return nil
}

// take pops the most recently used idle connection or opens a new one.
// The caller holds a capacity token.
func (p *Pool[C]) take(ctx context.Context) (*conn[C], error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	handle, err := p.factory(ctx)
	if err != nil {
		metrics.RecordPoolAcquireFailure(p.name, "factory")
		return nil, fmt.Errorf("pool %s: open connection: %w", p.name, Unhealthy(err))
	}

	p.created.Add(1)
	now := p.now()
	log := logger.Component("pool")
	log.Debug().Str("pool", p.name).Int64("created", p.created.Load()).Msg("Opened connection")
	return &conn[C]{handle: handle, created: now, lastUsed: now}, nil
}

// Release returns a lease's connection to the pool. Broken connections and
// connections failing the health check are closed instead. Releasing the
// same lease twice panics.
func (p *Pool[C]) Release(lease *Lease[C]) {
	if lease == nil || lease.pool != p {
		panic(fmt.Sprintf("pool %s: release of a lease not issued by this pool", p.name))
	}
	if !lease.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("pool %s: lease %s released twice", p.name, lease.ID))
	}

	reason := ""
	if lease.broken != nil {
		reason = "broken"
	} else if p.healthCheck != nil {
		if err := p.healthCheck(lease.conn.handle); err != nil {
			reason = "unhealthy"
		}
	}

	p.mu.Lock()
	delete(p.leases, lease.ID)
	if p.closed && reason == "" {
		reason = "closed"
	}
	if reason == "" {
		lease.conn.lastUsed = p.now()
		p.idle = append(p.idle, lease.conn)
	}
	idle, inUse := len(p.idle), len(p.leases)
	p.mu.Unlock()

	if reason != "" {
		p.discard(lease.conn, reason)
		if reason != "closed" {
			log := logger.Component("pool")
			log.Warn().
				Str("pool", p.name).
				Str("lease_id", lease.ID).
				Str("reason", reason).
				AnErr("cause", lease.broken).
				Msg("Discarded connection")
		}
	}

	p.sem.Release(1)
	metrics.UpdatePoolConnections(p.name, idle, inUse)
}

func (p *Pool[C]) discard(c *conn[C], reason string) {
	p.discarded.Add(1)
	metrics.RecordPoolDiscard(p.name, reason)
	if p.closeFn == nil {
		return
	}
	if err := p.closeFn(c.handle); err != nil {
		log := logger.Component("pool")
		log.Debug().Str("pool", p.name).Err(err).Msg("Close connection failed")
	}
}

// Shrink closes idle connections beyond keep, oldest first, and returns how
// many were closed.
func (p *Pool[C]) Shrink(keep int) int {
	if keep < 0 {
		keep = 0
	}

	p.mu.Lock()
	n := len(p.idle) - keep
	if n <= 0 {
		p.mu.Unlock()
		return 0
	}
	victims := make([]*conn[C], n)
	copy(victims, p.idle[:n])
	kept := append(p.idle[:0], p.idle[n:]...)
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
	idle, inUse := len(p.idle), len(p.leases)
	p.mu.Unlock()

	for _, c := range victims {
		p.discard(c, "shrink")
	}
	metrics.UpdatePoolConnections(p.name, idle, inUse)
	return n
}

// CloseIdle closes idle connections unused for longer than maxIdle.
func (p *Pool[C]) CloseIdle(maxIdle time.Duration) int {
	cutoff := p.now().Add(-maxIdle)

	p.mu.Lock()
	kept := p.idle[:0]
	var victims []*conn[C]
	for _, c := range p.idle {
		if c.lastUsed.Before(cutoff) {
			victims = append(victims, c)
		} else {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
	idle, inUse := len(p.idle), len(p.leases)
	p.mu.Unlock()

	for _, c := range victims {
		p.discard(c, "idle")
	}
	if len(victims) > 0 {
		log := logger.Component("pool")
		log.Info().Str("pool", p.name).Int("closed", len(victims)).Msg("Closed idle connections")
	}
	metrics.UpdatePoolConnections(p.name, idle, inUse)
	return len(victims)
}

// Stats returns a snapshot of pool usage.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	idle, inUse := len(p.idle), len(p.leases)
	p.mu.Unlock()

	return Stats{
		Name:      p.name,
		MaxSize:   p.maxSize,
		Idle:      idle,
		InUse:     inUse,
		Created:   p.created.Load(),
		Discarded: p.discarded.Load(),
		Acquired:  p.acquired.Load(),
		Exhausted: p.exhausted.Load(),
	}
}

// Close closes idle connections and rejects further acquires. Connections
// still leased are closed when released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	victims := p.idle
	p.idle = nil
	inUse := len(p.leases)
	p.mu.Unlock()

	var errs []error
	for _, c := range victims {
		p.discarded.Add(1)
		metrics.RecordPoolDiscard(p.name, "closed")
		if p.closeFn != nil {
			if err := p.closeFn(c.handle); err != nil {
				errs = append(errs, err)
			}
		}
	}
	metrics.UpdatePoolConnections(p.name, 0, inUse)

	log := logger.Component("pool")
	log.Info().Str("pool", p.name).Int("closed", len(victims)).Int("in_use", inUse).Msg("Pool closed")
	return errors.Join(errs...)
}

func (p *Pool[C]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
