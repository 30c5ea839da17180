package repository

import (
	"context"
	"errors"

	"github.com/guttosm/rental-manager/internal/circuitbreaker"
)

// SamplesRepositoryWithCircuitBreaker wraps SamplesRepository with circuit breaker protection.
type SamplesRepositoryWithCircuitBreaker struct {
	repo           SamplesRepositoryInterface
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewSamplesRepositoryWithCircuitBreaker creates a new repository wrapper with circuit breaker.
func NewSamplesRepositoryWithCircuitBreaker(repo SamplesRepositoryInterface, cb *circuitbreaker.CircuitBreaker) *SamplesRepositoryWithCircuitBreaker {
	return &SamplesRepositoryWithCircuitBreaker{
		repo:           repo,
		circuitBreaker: cb,
	}
}

// Create stores one sample. While the circuit is open samples are dropped.
func (r *SamplesRepositoryWithCircuitBreaker) Create(ctx context.Context, sample *SampleDocument) error {
	err := r.circuitBreaker.Execute(ctx, func() error {
		return r.repo.Create(ctx, sample)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil
	}
	return err
}

// CreateMany stores samples in bulk. While the circuit is open samples are dropped.
func (r *SamplesRepositoryWithCircuitBreaker) CreateMany(ctx context.Context, samples []*SampleDocument) error {
	err := r.circuitBreaker.Execute(ctx, func() error {
		return r.repo.CreateMany(ctx, samples)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil
	}
	return err
}

// Query retrieves samples with circuit breaker protection.
func (r *SamplesRepositoryWithCircuitBreaker) Query(ctx context.Context, opts SampleQueryOptions) ([]*SampleDocument, error) {
	var result []*SampleDocument
	err := r.circuitBreaker.Execute(ctx, func() error {
		var cbErr error
		result, cbErr = r.repo.Query(ctx, opts)
		return cbErr
	})
	return result, err
}

// Count returns the sample count with circuit breaker protection.
func (r *SamplesRepositoryWithCircuitBreaker) Count(ctx context.Context, opts SampleQueryOptions) (int64, error) {
	var result int64
	err := r.circuitBreaker.Execute(ctx, func() error {
		var cbErr error
		result, cbErr = r.repo.Count(ctx, opts)
		return cbErr
	})
	return result, err
}

// GetCircuitBreaker returns the underlying circuit breaker for monitoring.
func (r *SamplesRepositoryWithCircuitBreaker) GetCircuitBreaker() *circuitbreaker.CircuitBreaker {
	return r.circuitBreaker
}
