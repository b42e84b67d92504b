package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

// MockAnalyzer is a mock implementation of port.Analyzer.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CandidateIssue), args.Error(1)
}

func (m *MockAnalyzer) Source() string {
	args := m.Called()
	return args.String(0)
}
