// Code generated manually. DO NOT EDIT.

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/guttosm/rental-manager/internal/repository"
)

type MockSamplesRepositoryInterface struct {
	mock.Mock
}

func (m *MockSamplesRepositoryInterface) Create(ctx context.Context, sample *repository.SampleDocument) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockSamplesRepositoryInterface) CreateMany(ctx context.Context, samples []*repository.SampleDocument) error {
	args := m.Called(ctx, samples)
	return args.Error(0)
}

func (m *MockSamplesRepositoryInterface) Query(ctx context.Context, opts repository.SampleQueryOptions) ([]*repository.SampleDocument, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.SampleDocument), args.Error(1)
}

func (m *MockSamplesRepositoryInterface) Count(ctx context.Context, opts repository.SampleQueryOptions) (int64, error) {
	args := m.Called(ctx, opts)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}

var _ repository.SamplesRepositoryInterface = (*MockSamplesRepositoryInterface)(nil)
