package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reclaim/internal/port"
)

// MockClassifier is a mock implementation of port.Classifier.
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, input port.ClassifyInput) (*port.Classification, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.Classification), args.Error(1)
}

func (m *MockClassifier) Name() string {
	args := m.Called()
	return args.String(0)
}
