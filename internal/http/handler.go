// Package http serves the admin API of the rental manager: health checks,
// Prometheus metrics, component statistics and cache and memory controls.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/rental-manager/internal/domain/dto"
	"github.com/guttosm/rental-manager/internal/middleware"
	"github.com/guttosm/rental-manager/internal/monitor"
)

// ErrUnavailable is returned by Admin operations whose component is disabled.
var ErrUnavailable = errors.New("component unavailable")

// Admin is the runtime the admin API inspects and controls.
type Admin interface {
	// Stats snapshots every cache, pool and the memory monitor.
	Stats(ctx context.Context) dto.StatsResponse
	// InvalidateKey removes one query cache entry.
	InvalidateKey(key string) bool
	// InvalidatePrefix removes every query cache entry under prefix.
	InvalidatePrefix(prefix string) int
	// Cleanup runs the memory cleanup hooks now.
	Cleanup(ctx context.Context) (monitor.Sample, int64, error)
}

// Handler provides the /api handlers.
type Handler struct {
	admin Admin
	pools *ResponsePools
}

// NewHandler creates a Handler. pools may be nil.
func NewHandler(admin Admin, pools *ResponsePools) *Handler {
	if pools == nil {
		pools = NewResponsePools(0)
	}
	return &Handler{admin: admin, pools: pools}
}

// Pools returns the handler's response envelope pools.
func (h *Handler) Pools() *ResponsePools {
	return h.pools
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats := h.admin.Stats(c.Request.Context())
	stats.ObjectPools = append(stats.ObjectPools, h.pools.Stats()...)
	NewResponseBuilder(c, h.pools).SuccessOK(stats)
}

// InvalidateCache handles POST /api/cache/invalidate with a body naming
// either a key or a prefix.
func (h *Handler) InvalidateCache(c *gin.Context) {
	builder := NewResponseBuilder(c, h.pools)

	req, err := BuildRequestAndValidate[dto.InvalidateRequest](c)
	if err != nil {
		builder.Error(http.StatusBadRequest, "Body must name exactly one of key or prefix", err)
		return
	}

	var removed int
	if req.Key != "" {
		if h.admin.InvalidateKey(req.Key) {
			removed = 1
		}
	} else {
		removed = h.admin.InvalidatePrefix(req.Prefix)
	}

	log := middleware.RequestLog(c)
	log.Info().
		Str("key", req.Key).
		Str("prefix", req.Prefix).
		Int("removed", removed).
		Msg("Cache invalidated")
	builder.SuccessOK(dto.InvalidateResponse{Removed: removed})
}

// Cleanup handles POST /api/memory/cleanup.
func (h *Handler) Cleanup(c *gin.Context) {
	builder := NewResponseBuilder(c, h.pools)

	after, cleanups, err := h.admin.Cleanup(c.Request.Context())
	switch {
	case errors.Is(err, ErrUnavailable):
		builder.Error(http.StatusServiceUnavailable, "Memory monitoring is disabled", nil)
		return
	case errors.Is(err, context.DeadlineExceeded):
		builder.Error(http.StatusGatewayTimeout, "Cleanup timed out", err)
		return
	case err != nil:
		builder.Error(http.StatusInternalServerError, "Cleanup failed", err)
		return
	}

	builder.SuccessOK(dto.CleanupResponse{After: after, Cleanups: cleanups})
}
