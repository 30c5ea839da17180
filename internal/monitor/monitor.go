// Package monitor samples process memory and relieves pressure by running
// cleanup hooks registered by caches and pools.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/metrics"
)

const (
	// StateStopped means no sampling loop is running.
	StateStopped = "stopped"
	// StateMonitoring means the sampling loop is running.
	StateMonitoring = "monitoring"
)

// ErrInvalidThreshold is returned for thresholds outside [0, 1].
var ErrInvalidThreshold = errors.New("monitor: threshold must be within [0, 1]")

// Sample is one memory reading.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	ResidentBytes uint64    `json:"resident_bytes"`
	LimitBytes    uint64    `json:"limit_bytes"`
	Usage         float64   `json:"usage"`
	Threshold     float64   `json:"threshold"`
}

// Stats summarizes the sample stream. The zero value means nothing was
// sampled yet.
type Stats struct {
	State         string  `json:"state"`
	Latest        *Sample `json:"latest,omitempty"`
	AfterCleanup  *Sample `json:"after_cleanup,omitempty"`
	PeakBytes     uint64  `json:"peak_bytes"`
	AverageBytes  uint64  `json:"average_bytes"`
	HistoryPoints int     `json:"history_points"`
	Cleanups      int64   `json:"cleanups"`
}

// CleanupFunc relieves memory pressure.
type CleanupFunc func(ctx context.Context)

type hook struct {
	name string
	fn   CleanupFunc
}

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration
	// Threshold is the fraction of LimitBytes at which cleanup runs.
	Threshold float64
	// LimitBytes is the ceiling usage is measured against. Zero disables cleanup.
	LimitBytes  uint64
	HistorySize int
	Sampler     Sampler
	// FreeOSMemory returns freed heap to the OS after the hooks run.
	FreeOSMemory bool
}

// DefaultConfig returns sensible monitor defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		Threshold:    0.8,
		LimitBytes:   1024 << 20,
		HistorySize:  100,
		FreeOSMemory: true,
	}
}

type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

// Monitor periodically samples memory and runs cleanup hooks under pressure.
type Monitor struct {
	interval     time.Duration
	limit        uint64
	historySize  int
	sampler      Sampler
	freeOSMemory bool
	newTicker    func(time.Duration) ticker

	mu           sync.Mutex
	threshold    float64
	hooks        []hook
	observers    []func(Sample)
	history      []Sample
	peak         uint64
	afterCleanup *Sample
	cleanups     int64

	// run guards the loop lifecycle separately from sample state so that
	// Stats never waits on a running cleanup.
	run     sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	check sync.Mutex
}

// New creates a stopped monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, cfg.Threshold)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.Sampler == nil {
		cfg.Sampler = NewSampler()
	}

	return &Monitor{
		interval:     cfg.Interval,
		limit:        cfg.LimitBytes,
		historySize:  cfg.HistorySize,
		sampler:      cfg.Sampler,
		freeOSMemory: cfg.FreeOSMemory,
		threshold:    cfg.Threshold,
		history:      make([]Sample, 0, cfg.HistorySize),
		newTicker: func(d time.Duration) ticker {
			return timeTicker{time.NewTicker(d)}
		},
	}, nil
}

// RegisterCleanup adds a hook. Hooks run in registration order.
func (m *Monitor) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// OnSample registers an observer called with every primary sample.
func (m *Monitor) OnSample(fn func(Sample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// SetThreshold changes the pressure threshold.
func (m *Monitor) SetThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	m.mu.Lock()
	m.threshold = threshold
	m.mu.Unlock()
	return nil
}

// Threshold returns the current pressure threshold.
func (m *Monitor) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// Start begins periodic sampling. Calling Start while monitoring is a no-op.
// Cancelling ctx stops the monitor as Stop would.
func (m *Monitor) Start(ctx context.Context) {
	m.run.Lock()
	defer m.run.Unlock()
	if m.running.Load() {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.running.Store(true)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx, m.done)

	log := logger.Component("monitor")
	log.Info().
		Dur("interval", m.interval).
		Float64("threshold", m.Threshold()).
		Uint64("limit_bytes", m.limit).
		Msg("Memory monitoring started")
}

// Stop ends sampling and waits for the loop to exit. Stopping a stopped
// monitor is a no-op.
func (m *Monitor) Stop() {
	m.run.Lock()
	defer m.run.Unlock()
	if !m.running.Load() {
		return
	}

	m.cancel()
	<-m.done
	m.running.Store(false)
	m.cancel = nil
	m.done = nil

	log := logger.Component("monitor")
	log.Info().Msg("Memory monitoring stopped")
}

// State returns StateMonitoring or StateStopped.
func (m *Monitor) State() string {
	if m.running.Load() {
		return StateMonitoring
	}
	return StateStopped
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer m.loopExited(done)

	t := m.newTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-t.Chan():
			if _, err := m.CheckNow(ctx); err != nil {
				log := logger.Component("monitor")
				log.Warn().Err(err).Msg("Memory sample failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// loopExited releases Stop, then marks the monitor stopped when the loop
// ended because its parent context did. done no longer matches once Stop
// or a later Start has taken over.
func (m *Monitor) loopExited(done chan struct{}) {
	close(done)

	m.run.Lock()
	defer m.run.Unlock()
	if m.done != done {
		return
	}
	m.cancel()
	m.running.Store(false)
	m.cancel = nil
	m.done = nil

	log := logger.Component("monitor")
	log.Info().Msg("Memory monitoring stopped: context done")
}

// CheckNow runs one sampling cycle synchronously: sample, run cleanup hooks
// when usage is at or above the threshold, then re-sample once.
func (m *Monitor) CheckNow(ctx context.Context) (Sample, error) {
	m.check.Lock()
	defer m.check.Unlock()

	sample, err := m.sample()
	if err != nil {
		return Sample{}, err
	}

	m.mu.Lock()
	if len(m.history) == m.historySize {
		copy(m.history, m.history[1:])
		m.history = m.history[:len(m.history)-1]
	}
	m.history = append(m.history, sample)
	if sample.ResidentBytes > m.peak {
		m.peak = sample.ResidentBytes
	}
	observers := append([]func(Sample){}, m.observers...)
	m.mu.Unlock()

	metrics.RecordMemorySample(sample.ResidentBytes, sample.Usage)
	for _, fn := range observers {
		m.notify(fn, sample)
	}

	if m.limit == 0 || sample.Usage < sample.Threshold {
		return sample, nil
	}

	m.cleanup(ctx, sample)
	return sample, nil
}

// Cleanup runs the cleanup hooks immediately regardless of usage.
func (m *Monitor) Cleanup(ctx context.Context) (Sample, error) {
	m.check.Lock()
	defer m.check.Unlock()

	sample, err := m.sample()
	if err != nil {
		return Sample{}, err
	}
	return m.cleanup(ctx, sample), nil
}

func (m *Monitor) cleanup(ctx context.Context, before Sample) Sample {
	log := logger.Component("monitor")
	log.Warn().
		Uint64("resident_bytes", before.ResidentBytes).
		Float64("usage", before.Usage).
		Float64("threshold", before.Threshold).
		Msg("Memory pressure detected, running cleanup")

	m.mu.Lock()
	hooks := append([]hook{}, m.hooks...)
	m.mu.Unlock()

	for _, h := range hooks {
		m.runHook(ctx, h)
	}
	if m.freeOSMemory {
		debug.FreeOSMemory()
	}

	after, err := m.sample()
	if err != nil {
		log.Warn().Err(err).Msg("Post-cleanup sample failed")
		after = before
	}

	m.mu.Lock()
	m.cleanups++
	m.afterCleanup = &after
	m.mu.Unlock()

	metrics.RecordMemoryCleanup()
	log.Info().
		Uint64("resident_bytes", after.ResidentBytes).
		Float64("usage", after.Usage).
		Int("hooks", len(hooks)).
		Msg("Memory cleanup finished")
	return after
}

func (m *Monitor) runHook(ctx context.Context, h hook) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.Component("monitor")
			log.Error().Str("hook", h.name).Interface("panic", r).Msg("Cleanup hook panicked")
		}
	}()
	h.fn(ctx)
}

func (m *Monitor) notify(fn func(Sample), s Sample) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.Component("monitor")
			log.Error().Interface("panic", r).Msg("Sample observer panicked")
		}
	}()
	fn(s)
}

func (m *Monitor) sample() (Sample, error) {
	rss, err := m.sampler.ResidentBytes()
	if err != nil {
		return Sample{}, fmt.Errorf("sample memory: %w", err)
	}

	m.mu.Lock()
	threshold := m.threshold
	m.mu.Unlock()

	s := Sample{
		Timestamp:     time.Now(),
		ResidentBytes: rss,
		LimitBytes:    m.limit,
		Threshold:     threshold,
	}
	if m.limit > 0 {
		s.Usage = float64(rss) / float64(m.limit)
	}
	return s, nil
}

// Stats returns the latest sample set. It is safe to call in any state.
func (m *Monitor) Stats() Stats {
	state := m.State()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		State:         state,
		PeakBytes:     m.peak,
		HistoryPoints: len(m.history),
		Cleanups:      m.cleanups,
	}
	if len(m.history) == 0 {
		return stats
	}

	latest := m.history[len(m.history)-1]
	stats.Latest = &latest
	if m.afterCleanup != nil {
		after := *m.afterCleanup
		stats.AfterCleanup = &after
	}

	var sum uint64
	for _, s := range m.history {
		sum += s.ResidentBytes
	}
	stats.AverageBytes = sum / uint64(len(m.history))
	return stats
}

// History returns a copy of the retained samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.history...)
}
