package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"reclaim/internal/domain"
)

// MockDocumentRepo is a mock implementation of port.DocumentRepository.
type MockDocumentRepo struct {
	mock.Mock
}

func (m *MockDocumentRepo) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepo) GetByID(ctx context.Context, docID uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) ListByIDs(ctx context.Context, docIDs []uuid.UUID) ([]domain.Document, error) {
	args := m.Called(ctx, docIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]domain.Document, int, error) {
	args := m.Called(ctx, profileID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Document), args.Int(1), args.Error(2)
}

func (m *MockDocumentRepo) UpdateStatus(ctx context.Context, docID uuid.UUID, status domain.DocumentStatus) error {
	args := m.Called(ctx, docID, status)
	return args.Error(0)
}

func (m *MockDocumentRepo) UpdateEnrichment(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}
