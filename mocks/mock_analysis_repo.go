package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"reclaim/internal/domain"
)

// MockAnalysisRepo is a mock implementation of port.AnalysisRepository.
type MockAnalysisRepo struct {
	mock.Mock
}

func (m *MockAnalysisRepo) Create(ctx context.Context, a *domain.Analysis, docIDs []uuid.UUID) error {
	args := m.Called(ctx, a, docIDs)
	return args.Error(0)
}

func (m *MockAnalysisRepo) GetByID(ctx context.Context, analysisID uuid.UUID) (*domain.Analysis, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Analysis), args.Error(1)
}

func (m *MockAnalysisRepo) DocumentIDs(ctx context.Context, analysisID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockAnalysisRepo) Update(ctx context.Context, a *domain.Analysis) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAnalysisRepo) ClaimQueued(ctx context.Context, limit int, now time.Time) ([]domain.Analysis, error) {
	args := m.Called(ctx, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Analysis), args.Error(1)
}
