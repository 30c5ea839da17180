package dto

import (
	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/circuitbreaker"
	"github.com/guttosm/rental-manager/internal/monitor"
	"github.com/guttosm/rental-manager/internal/objpool"
	"github.com/guttosm/rental-manager/internal/pool"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	QueryCache  cache.Metrics            `json:"query_cache"`
	TextCaches  map[string]cache.Metrics `json:"text_caches,omitempty"`
	Pools       []pool.Stats             `json:"pools"`
	ObjectPools []objpool.Stats          `json:"object_pools"`
	Breakers    []circuitbreaker.Stats   `json:"circuit_breakers,omitempty"`
	Memory      monitor.Stats            `json:"memory"`
	Extractor   LoaderStatus             `json:"extractor"`
	Recorder    *RecorderStatus          `json:"recorder,omitempty"`
}

// LoaderStatus reports a deferred resource.
type LoaderStatus struct {
	Name   string `json:"name"`
	Loaded bool   `json:"loaded"`
}

// RecorderStatus reports sample persistence activity.
type RecorderStatus struct {
	Enqueued int64 `json:"enqueued"`
	Dropped  int64 `json:"dropped"`
	Written  int64 `json:"written"`
	Errors   int64 `json:"errors"`
}

// CleanupResponse is the body of POST /api/memory/cleanup.
type CleanupResponse struct {
	After    monitor.Sample `json:"after"`
	Cleanups int64          `json:"cleanups"`
}
