package service

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/monitor"
	"github.com/guttosm/rental-manager/internal/repository"
)

// RecorderConfig holds configuration for the sample recorder.
type RecorderConfig struct {
	// BufferSize is the size of the sample channel buffer.
	BufferSize int
	// NumWorkers is the number of goroutines writing samples.
	NumWorkers int
	// WriteTimeout bounds one write to the store.
	WriteTimeout time.Duration
	// Host labels stored samples. Defaults to the hostname.
	Host string
}

// DefaultRecorderConfig returns defaults for the sample recorder.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:   100,
		NumWorkers:   2,
		WriteTimeout: 5 * time.Second,
	}
}

// RecorderStats reports sample recorder activity.
type RecorderStats struct {
	Enqueued int64 `json:"enqueued"`
	Dropped  int64 `json:"dropped"`
	Written  int64 `json:"written"`
	Errors   int64 `json:"errors"`
}

// SampleRecorder persists monitor samples off the sampling path with a
// fixed pool of writers. Samples arriving while the buffer is full are
// dropped.
type SampleRecorder struct {
	repo         repository.SamplesRepositoryInterface
	sampleCh     chan *repository.SampleDocument
	wg           sync.WaitGroup
	stopCh       chan struct{}
	stopOnce     sync.Once
	writeTimeout time.Duration
	host         string

	enqueued atomic.Int64
	dropped  atomic.Int64
	written  atomic.Int64
	errors   atomic.Int64
}

// NewSampleRecorder starts a recorder writing to repo.
func NewSampleRecorder(repo repository.SamplesRepositoryInterface, cfg RecorderConfig) *SampleRecorder {
	def := DefaultRecorderConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = def.NumWorkers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}

	r := &SampleRecorder{
		repo:         repo,
		sampleCh:     make(chan *repository.SampleDocument, cfg.BufferSize),
		stopCh:       make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		host:         cfg.Host,
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *SampleRecorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case doc := <-r.sampleCh:
			r.write(doc)
		case <-r.stopCh:
			// Drain what is buffered before stopping.
			for {
				select {
				case doc := <-r.sampleCh:
					r.write(doc)
				default:
					return
				}
			}
		}
	}
}

func (r *SampleRecorder) write(doc *repository.SampleDocument) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, doc); err != nil {
		r.errors.Add(1)
		log := logger.Component("recorder")
		log.Warn().Err(err).Msg("Failed to store memory sample")
		return
	}
	r.written.Add(1)
}

// Record enqueues a sample. It reports false when the buffer is full or the
// recorder is stopped.
func (r *SampleRecorder) Record(s monitor.Sample) bool {
	select {
	case <-r.stopCh:
		r.dropped.Add(1)
		return false
	default:
	}

	doc := &repository.SampleDocument{
		Timestamp:     s.Timestamp,
		Host:          r.host,
		ResidentBytes: int64(s.ResidentBytes),
		LimitBytes:    int64(s.LimitBytes),
		Usage:         s.Usage,
		Threshold:     s.Threshold,
		Cleaned:       s.LimitBytes > 0 && s.Usage >= s.Threshold,
	}

	select {
	case r.sampleCh <- doc:
		r.enqueued.Add(1)
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Observe adapts Record to monitor.Monitor.OnSample.
func (r *SampleRecorder) Observe(s monitor.Sample) {
	r.Record(s)
}

// Stop waits for buffered samples to be written. Safe to call more than once.
func (r *SampleRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

// Stats returns recorder statistics.
func (r *SampleRecorder) Stats() RecorderStats {
	return RecorderStats{
		Enqueued: r.enqueued.Load(),
		Dropped:  r.dropped.Load(),
		Written:  r.written.Load(),
		Errors:   r.errors.Load(),
	}
}
