// Package objpool recycles mutable objects on hot allocation paths.
//
// Unlike sync.Pool, the pool is bounded, never drops objects behind the
// caller's back and reports what it did, so the memory monitor can drain it
// deterministically under pressure.
package objpool

import (
	"bytes"
	"sync/atomic"

	"github.com/guttosm/rental-manager/internal/metrics"
)

// DefaultCapacity is the idle object bound used when none is configured.
const DefaultCapacity = 100

// Config holds object pool configuration.
type Config[T any] struct {
	Name     string
	Capacity int
	// New creates an object when the pool is empty.
	New func() T
	// Reset clears an object's contents before it is pooled again.
	Reset func(T)
}

// Stats reports object pool activity.
type Stats struct {
	Name     string `json:"name"`
	Idle     int    `json:"idle"`
	Capacity int    `json:"capacity"`
	Created  int64  `json:"created"`
	Reused   int64  `json:"reused"`
	Returned int64  `json:"returned"`
	Rejected int64  `json:"rejected"`
}

// Pool is a bounded free list of objects of type T.
type Pool[T any] struct {
	name     string
	capacity int
	items    chan T
	newFn    func() T
	reset    func(T)

	created  atomic.Int64
	reused   atomic.Int64
	returned atomic.Int64
	rejected atomic.Int64
}

// New creates an object pool. cfg.New is required.
func New[T any](cfg Config[T]) *Pool[T] {
	if cfg.New == nil {
		panic("objpool: New func is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "objects"
	}
	return &Pool[T]{
		name:     cfg.Name,
		capacity: cfg.Capacity,
		items:    make(chan T, cfg.Capacity),
		newFn:    cfg.New,
		reset:    cfg.Reset,
	}
}

// Name returns the pool name.
func (p *Pool[T]) Name() string {
	return p.name
}

// Get returns a pooled object, creating one when the pool is empty.
// The caller owns it exclusively until Put.
func (p *Pool[T]) Get() T {
	select {
	case obj := <-p.items:
		p.reused.Add(1)
		metrics.RecordObjectPoolOperation(p.name, "reuse")
		return obj
	default:
		p.created.Add(1)
		metrics.RecordObjectPoolOperation(p.name, "create")
		return p.newFn()
	}
}

// Put clears obj and keeps it for reuse. It returns false and drops obj when
// the pool already holds Capacity idle objects. The caller must not touch
// obj after Put either way.
func (p *Pool[T]) Put(obj T) bool {
	if p.reset != nil {
		p.reset(obj)
	}
	select {
	case p.items <- obj:
		p.returned.Add(1)
		metrics.RecordObjectPoolOperation(p.name, "return")
		return true
	default:
		p.rejected.Add(1)
		metrics.RecordObjectPoolOperation(p.name, "reject")
		return false
	}
}

// Drain drops every idle object and returns how many were dropped.
func (p *Pool[T]) Drain() int {
	n := 0
	for {
		select {
		case <-p.items:
			n++
		default:
			if n > 0 {
				metrics.RecordObjectPoolOperation(p.name, "drain")
			}
			return n
		}
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Name:     p.name,
		Idle:     len(p.items),
		Capacity: p.capacity,
		Created:  p.created.Load(),
		Reused:   p.reused.Load(),
		Returned: p.returned.Load(),
		Rejected: p.rejected.Load(),
	}
}

// NewBufferPool pools byte buffers.
func NewBufferPool(name string, capacity int) *Pool[*bytes.Buffer] {
	return New(Config[*bytes.Buffer]{
		Name:     name,
		Capacity: capacity,
		New:      func() *bytes.Buffer { return new(bytes.Buffer) },
		Reset:    func(b *bytes.Buffer) { b.Reset() },
	})
}

// NewSlicePool pools slices. Elements are zeroed on return so that pooled
// backing arrays hold no references.
func NewSlicePool[E any](name string, capacity int) *Pool[*[]E] {
	return New(Config[*[]E]{
		Name:     name,
		Capacity: capacity,
		New: func() *[]E {
			s := make([]E, 0, 16)
			return &s
		},
		Reset: func(s *[]E) {
			clear(*s)
			*s = (*s)[:0]
		},
	})
}

// NewMapPool pools maps.
func NewMapPool[K comparable, V any](name string, capacity int) *Pool[map[K]V] {
	return New(Config[map[K]V]{
		Name:     name,
		Capacity: capacity,
		New:      func() map[K]V { return make(map[K]V) },
		Reset:    func(m map[K]V) { clear(m) },
	})
}
