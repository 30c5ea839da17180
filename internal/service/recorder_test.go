//go:build !integration

package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/guttosm/rental-manager/internal/circuitbreaker"
	"github.com/guttosm/rental-manager/internal/mocks"
	"github.com/guttosm/rental-manager/internal/monitor"
	"github.com/guttosm/rental-manager/internal/repository"
)

func TestSampleRecorder_WritesSamples(t *testing.T) {
	repo := new(mocks.MockSamplesRepositoryInterface)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(doc *repository.SampleDocument) bool {
		return doc.Host == "test-host" && doc.Cleaned && doc.ResidentBytes == 900
	})).Return(nil).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(doc *repository.SampleDocument) bool {
		return !doc.Cleaned
	})).Return(nil).Once()

	r := NewSampleRecorder(repo, RecorderConfig{BufferSize: 10, NumWorkers: 1, Host: "test-host"})

	now := time.Now()
	assert.True(t, r.Record(monitor.Sample{Timestamp: now, ResidentBytes: 900, LimitBytes: 1000, Usage: 0.9, Threshold: 0.8}))
	r.Observe(monitor.Sample{Timestamp: now, ResidentBytes: 100, LimitBytes: 1000, Usage: 0.1, Threshold: 0.8})
	r.Stop()

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Enqueued)
	assert.Equal(t, int64(2), stats.Written)
	assert.Zero(t, stats.Errors)
	repo.AssertExpectations(t)
}

func TestSampleRecorder_CountsErrors(t *testing.T) {
	repo := new(mocks.MockSamplesRepositoryInterface)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("write failed"))

	r := NewSampleRecorder(repo, RecorderConfig{BufferSize: 10, NumWorkers: 2})
	r.Record(monitor.Sample{Usage: 0.5})
	r.Stop()

	assert.Equal(t, int64(1), r.Stats().Errors)
	assert.Zero(t, r.Stats().Written)
}

func TestSampleRecorder_DropsWhenFullOrStopped(t *testing.T) {
	started := make(chan struct{}, 10)
	block := make(chan struct{})
	repo := new(mocks.MockSamplesRepositoryInterface)
	repo.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-block
		}).
		Return(nil)

	r := NewSampleRecorder(repo, RecorderConfig{BufferSize: 1, NumWorkers: 1})

	// The worker holds the first sample and the buffer the second.
	assert.True(t, r.Record(monitor.Sample{}))
	<-started
	assert.True(t, r.Record(monitor.Sample{}))
	assert.False(t, r.Record(monitor.Sample{}))
	assert.False(t, r.Record(monitor.Sample{}))
	assert.Equal(t, int64(2), r.Stats().Dropped)

	close(block)
	r.Stop()
	r.Stop()

	assert.False(t, r.Record(monitor.Sample{}))
	assert.Equal(t, int64(2), r.Stats().Written)
	assert.Equal(t, int64(3), r.Stats().Dropped)
}

func TestSampleRecorder_OpenCircuitDropsSilently(t *testing.T) {
	inner := new(mocks.MockSamplesRepositoryInterface)
	inner.On("Create", mock.Anything, mock.Anything).Return(errors.New("mongo down"))

	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = time.Hour
	cb := circuitbreaker.New(cfg)
	repo := repository.NewSamplesRepositoryWithCircuitBreaker(inner, cb)

	r := NewSampleRecorder(repo, RecorderConfig{NumWorkers: 1})
	r.Record(monitor.Sample{})
	r.Record(monitor.Sample{})
	r.Stop()

	assert.True(t, cb.IsOpen())
	assert.Equal(t, int64(1), r.Stats().Errors)
	assert.Equal(t, int64(1), r.Stats().Written)
	inner.AssertNumberOfCalls(t, "Create", 1)
}
