package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"reclaim/internal/domain"
)

// MockIssueRepo is a mock implementation of port.IssueRepository.
type MockIssueRepo struct {
	mock.Mock
}

func (m *MockIssueRepo) CreateBatch(ctx context.Context, issues []domain.Issue) error {
	args := m.Called(ctx, issues)
	return args.Error(0)
}

func (m *MockIssueRepo) GetByID(ctx context.Context, issueID uuid.UUID) (*domain.Issue, error) {
	args := m.Called(ctx, issueID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Issue), args.Error(1)
}

func (m *MockIssueRepo) ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.Issue, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Issue), args.Error(1)
}

func (m *MockIssueRepo) UpdateStatus(ctx context.Context, issueID uuid.UUID, status domain.IssueStatus, notes string) (*domain.Issue, error) {
	args := m.Called(ctx, issueID, status, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Issue), args.Error(1)
}
