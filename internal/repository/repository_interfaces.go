package repository

import (
	"context"
)

// SamplesRepositoryInterface defines the interface for memory sample storage.
type SamplesRepositoryInterface interface {
	Create(ctx context.Context, sample *SampleDocument) error
	CreateMany(ctx context.Context, samples []*SampleDocument) error
	Query(ctx context.Context, opts SampleQueryOptions) ([]*SampleDocument, error)
	Count(ctx context.Context, opts SampleQueryOptions) (int64, error)
}

var (
	_ SamplesRepositoryInterface = (*SamplesRepository)(nil)
	_ SamplesRepositoryInterface = (*SamplesRepositoryWithCircuitBreaker)(nil)
)
