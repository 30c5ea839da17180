// Package lazy defers acquisition of heavyweight resources until first use.
package lazy

import (
	"context"
	"fmt"
	"sync"

	"github.com/guttosm/rental-manager/internal/logger"
)

// Loader acquires the resource behind a Handle.
type Loader[T any] func(ctx context.Context) (T, error)

// Handle memoizes the result of a Loader. Concurrent first calls to Get run
// the loader once and all observe the same value. A failed load is not
// memoized; the next Get tries again.
type Handle[T any] struct {
	name   string
	load   Loader[T]
	mu     sync.Mutex
	value  T
	loaded bool
}

// New returns an unloaded handle for the resource identified by name.
func New[T any](name string, load Loader[T]) *Handle[T] {
	return &Handle[T]{name: name, load: load}
}

// Name returns the resource identifier.
func (h *Handle[T]) Name() string {
	return h.name
}

// Get returns the resource, loading it on first use.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loaded {
		return h.value, nil
	}

	v, err := h.safeLoad(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("lazy %s: load: %w", h.name, err)
	}
	h.value = v
	h.loaded = true

	log := logger.Component("lazy")
	log.Debug().Str("resource", h.name).Msg("Loaded resource")
	return v, nil
}

func (h *Handle[T]) safeLoad(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.load(ctx)
}

// Loaded reports whether the resource is currently held.
func (h *Handle[T]) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Unload drops the memoized resource, passing it to release when non-nil.
// The next Get loads it again. It reports whether anything was held.
func (h *Handle[T]) Unload(release func(T)) bool {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return false
	}
	v := h.value
	var zero T
	h.value = zero
	h.loaded = false
	h.mu.Unlock()

	if release != nil {
		release(v)
	}
	log := logger.Component("lazy")
	log.Debug().Str("resource", h.name).Msg("Unloaded resource")
	return true
}
