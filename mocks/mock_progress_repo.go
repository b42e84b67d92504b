package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"reclaim/internal/domain"
)

// MockProgressRepo is a mock implementation of port.ProgressRepository.
type MockProgressRepo struct {
	mock.Mock
}

func (m *MockProgressRepo) Replace(ctx context.Context, p *domain.WorkflowProgress) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProgressRepo) Get(ctx context.Context, analysisID, documentID uuid.UUID) (*domain.WorkflowProgress, error) {
	args := m.Called(ctx, analysisID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkflowProgress), args.Error(1)
}

func (m *MockProgressRepo) ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.WorkflowProgress, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WorkflowProgress), args.Error(1)
}
