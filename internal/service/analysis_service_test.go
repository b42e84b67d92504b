package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reclaim/internal/analyzer"
	"reclaim/internal/analyzer/rules"
	"reclaim/internal/classifier"
	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/extractor"
	"reclaim/internal/port"
	"reclaim/internal/reconcile"
	"reclaim/internal/service"
	"reclaim/mocks"
)

type serviceFixture struct {
	docRepo      *mocks.MockDocumentRepo
	analysisRepo *mocks.MockAnalysisRepo
	issueRepo    *mocks.MockIssueRepo
	progressRepo *mocks.MockProgressRepo
	storage      *mocks.MockObjectStorage
	svc          service.AnalysisService
}

func newFixture(analyzers []port.Analyzer) *serviceFixture {
	f := &serviceFixture{
		docRepo:      new(mocks.MockDocumentRepo),
		analysisRepo: new(mocks.MockAnalysisRepo),
		issueRepo:    new(mocks.MockIssueRepo),
		progressRepo: new(mocks.MockProgressRepo),
		storage:      new(mocks.MockObjectStorage),
	}
	f.svc = service.NewAnalysisService(
		f.docRepo,
		f.analysisRepo,
		f.issueRepo,
		f.progressRepo,
		f.storage,
		classifier.NewKeywordClassifier(),
		extractor.NewDefaultRegistry(),
		analyzers,
		reconcile.NewEngine(config.ReconcileConfig{}),
		analyzer.NewMerger(config.MergeConfig{}),
		config.QueueConfig{MaxRetries: 3},
	)
	return f
}

func textDocument(profileID uuid.UUID) domain.Document {
	id := uuid.New()
	return domain.Document{
		ID:            id,
		ProfileID:     profileID,
		Name:          "statement.txt",
		ContentType:   "text/plain",
		Status:        domain.DocumentStatusUploaded,
		StorageBucket: "reclaim-test",
		StorageKey:    fmt.Sprintf("profiles/%s/documents/%s/statement.txt", profileID, id),
	}
}

const dentalBillWithDuplicate = `SMILE DENTAL ASSOCIATES, DDS
Statement of services
Date of Service: 02/10/2025
D1110 Prophylaxis - adult  $120.00
D1110 Prophylaxis - adult  $120.00
Balance Due: $240.00`

func TestRunAnalysisValidation(t *testing.T) {
	profileID := uuid.New()

	t.Run("no documents", func(t *testing.T) {
		f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
		_, err := f.svc.RunAnalysis(context.Background(), &service.RunAnalysisInput{ProfileID: profileID})
		assert.ErrorIs(t, err, domain.ErrNoDocuments)
	})

	t.Run("no analyzer backends", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.svc.RunAnalysis(context.Background(), &service.RunAnalysisInput{
			ProfileID:   profileID,
			DocumentIDs: []uuid.UUID{uuid.New()},
		})
		assert.ErrorIs(t, err, domain.ErrNoProviderConfigured)
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
		f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{}, nil)
		_, err := f.svc.RunAnalysis(context.Background(), &service.RunAnalysisInput{
			ProfileID:   profileID,
			DocumentIDs: []uuid.UUID{uuid.New()},
		})
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("document owned by another profile", func(t *testing.T) {
		f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
		other := textDocument(uuid.New())
		f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{other}, nil)
		_, err := f.svc.RunAnalysis(context.Background(), &service.RunAnalysisInput{
			ProfileID:   profileID,
			DocumentIDs: []uuid.UUID{other.ID},
		})
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestRunAnalysisGuardsAgainstWorkerClaim(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)

	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.analysisRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// Stop the background launcher at its first load.
	f.analysisRepo.On("GetByID", mock.Anything, mock.Anything).Return(nil, errors.New("connection closed"))

	a, err := f.svc.RunAnalysis(context.Background(), &service.RunAnalysisInput{
		ProfileID:   profileID,
		DocumentIDs: []uuid.UUID{doc.ID},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusQueued, a.Status)
	// A fresh run carries a retry_after in the future so the queue worker
	// cannot claim it while the launcher is still starting it.
	require.NotNil(t, a.RetryAfter)
	assert.True(t, a.RetryAfter.After(time.Now()))
}

func TestRunAnalysisSkipsAlreadyClaimedRun(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)

	loaded := make(chan struct{})
	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.analysisRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.analysisRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&domain.Analysis{ID: uuid.New(), Status: domain.AnalysisStatusProcessing}, nil).
		Run(func(mock.Arguments) { close(loaded) })

	_, err := f.svc.RunAnalysis(context.Background(), &service.RunAnalysisInput{
		ProfileID:   profileID,
		DocumentIDs: []uuid.UUID{doc.ID},
	})
	require.NoError(t, err)

	select {
	case <-loaded:
	case <-time.After(5 * time.Second):
		t.Fatal("launcher never loaded the analysis")
	}
	time.Sleep(50 * time.Millisecond)
	// The worker already owns the run; the launcher must not touch it.
	f.analysisRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestProcessAnalysisHappyPath(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)
	a := &domain.Analysis{
		ID:        uuid.New(),
		ProfileID: profileID,
		Status:    domain.AnalysisStatusProcessing,
		Attempts:  1,
	}

	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	f.analysisRepo.On("DocumentIDs", mock.Anything, a.ID).Return([]uuid.UUID{doc.ID}, nil)
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.progressRepo.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateStatus", mock.Anything, doc.ID, mock.Anything).Return(nil)
	f.docRepo.On("UpdateEnrichment", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, doc.StorageBucket, doc.StorageKey).
		Return([]byte(dentalBillWithDuplicate), nil)
	f.issueRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)
	f.analysisRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.ProcessAnalysis(context.Background(), a, 3)

	// The duplicate cleaning charge surfaces as a merged issue.
	f.issueRepo.AssertCalled(t, "CreateBatch", mock.Anything, mock.MatchedBy(func(issues []domain.Issue) bool {
		for _, is := range issues {
			if is.Type == domain.IssueDuplicateCharge && is.AnalysisID == a.ID {
				return true
			}
		}
		return false
	}))

	assert.Equal(t, domain.AnalysisStatusCompleted, a.Status)
	assert.Empty(t, a.Error)
	assert.Greater(t, a.TotalSavings, 0.0)
	assert.NotNil(t, a.CompletedAt)
	assert.NotEmpty(t, a.CoverageMatrix)
	f.docRepo.AssertCalled(t, "UpdateStatus", mock.Anything, doc.ID, domain.DocumentStatusCompleted)
}

func TestProcessAnalysisPartialFailure(t *testing.T) {
	profileID := uuid.New()
	good := textDocument(profileID)
	bad := textDocument(profileID)
	a := &domain.Analysis{ID: uuid.New(), ProfileID: profileID, Status: domain.AnalysisStatusProcessing, Attempts: 1}

	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	f.analysisRepo.On("DocumentIDs", mock.Anything, a.ID).Return([]uuid.UUID{good.ID, bad.ID}, nil)
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{good, bad}, nil)
	f.progressRepo.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateEnrichment", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, good.StorageBucket, good.StorageKey).
		Return([]byte(dentalBillWithDuplicate), nil).Once()
	f.storage.On("Download", mock.Anything, bad.StorageBucket, bad.StorageKey).
		Return(nil, errors.New("object missing"))
	f.issueRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)
	f.analysisRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.ProcessAnalysis(context.Background(), a, 3)

	// One document failing does not fail the batch.
	assert.Equal(t, domain.AnalysisStatusCompleted, a.Status)
	assert.Equal(t, "1 of 2 documents failed", a.Error)
	f.docRepo.AssertCalled(t, "UpdateStatus", mock.Anything, bad.ID, domain.DocumentStatusFailed)
}

func TestProcessAnalysisAllDocumentsFailed(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)
	a := &domain.Analysis{ID: uuid.New(), ProfileID: profileID, Status: domain.AnalysisStatusProcessing, Attempts: 1}

	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	f.analysisRepo.On("DocumentIDs", mock.Anything, a.ID).Return([]uuid.UUID{doc.ID}, nil)
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.progressRepo.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("object missing"))
	f.analysisRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.ProcessAnalysis(context.Background(), a, 3)

	assert.Equal(t, domain.AnalysisStatusFailed, a.Status)
	assert.Contains(t, a.Error, "downloading document")
	f.issueRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestProcessAnalysisRequeuesOnRateLimit(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)
	a := &domain.Analysis{ID: uuid.New(), ProfileID: profileID, Status: domain.AnalysisStatusProcessing, Attempts: 1}

	rateLimited := new(mocks.MockAnalyzer)
	rateLimited.On("Source").Return("anthropic")
	rateLimited.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, analyzer.NewTransientError("anthropic", errors.New("429"), 60))

	f := newFixture([]port.Analyzer{rateLimited})
	f.analysisRepo.On("DocumentIDs", mock.Anything, a.ID).Return([]uuid.UUID{doc.ID}, nil)
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.progressRepo.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateEnrichment", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, mock.Anything, mock.Anything).
		Return([]byte(dentalBillWithDuplicate), nil)
	f.analysisRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.ProcessAnalysis(context.Background(), a, 3)

	assert.Equal(t, domain.AnalysisStatusQueued, a.Status)
	require.NotNil(t, a.RetryAfter)
	assert.True(t, a.RetryAfter.After(time.Now()))
	f.issueRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestProcessAnalysisFailsAfterAttemptBudget(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)
	// Already at the attempt limit; the rate-limit circuit must not requeue.
	a := &domain.Analysis{ID: uuid.New(), ProfileID: profileID, Status: domain.AnalysisStatusProcessing, Attempts: 3}

	rateLimited := new(mocks.MockAnalyzer)
	rateLimited.On("Source").Return("anthropic")
	rateLimited.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, analyzer.NewTransientError("anthropic", errors.New("429"), 60))

	f := newFixture([]port.Analyzer{rateLimited})
	f.analysisRepo.On("DocumentIDs", mock.Anything, a.ID).Return([]uuid.UUID{doc.ID}, nil)
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.progressRepo.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateEnrichment", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, mock.Anything, mock.Anything).
		Return([]byte(dentalBillWithDuplicate), nil)
	f.analysisRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.ProcessAnalysis(context.Background(), a, 3)

	// Out of attempts: the run fails instead of going back on the queue,
	// and the starved document fails with it.
	assert.Equal(t, domain.AnalysisStatusFailed, a.Status)
	assert.Equal(t, "all analyzer backends failed", a.Error)
	assert.Nil(t, a.RetryAfter)
	f.docRepo.AssertCalled(t, "UpdateStatus", mock.Anything, doc.ID, domain.DocumentStatusFailed)
	f.issueRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestProcessAnalysisFailsWhenBackendsPermanentlyFail(t *testing.T) {
	profileID := uuid.New()
	doc := textDocument(profileID)
	a := &domain.Analysis{ID: uuid.New(), ProfileID: profileID, Status: domain.AnalysisStatusProcessing, Attempts: 1}

	broken := new(mocks.MockAnalyzer)
	broken.On("Source").Return("anthropic")
	broken.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, analyzer.NewPermanentError("anthropic", errors.New("invalid api key")))

	f := newFixture([]port.Analyzer{broken})
	f.analysisRepo.On("DocumentIDs", mock.Anything, a.ID).Return([]uuid.UUID{doc.ID}, nil)
	f.docRepo.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Document{doc}, nil)
	f.progressRepo.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.docRepo.On("UpdateEnrichment", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, mock.Anything, mock.Anything).
		Return([]byte(dentalBillWithDuplicate), nil)
	f.analysisRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.ProcessAnalysis(context.Background(), a, 3)

	assert.Equal(t, domain.AnalysisStatusFailed, a.Status)
	assert.Equal(t, "all analyzer backends failed", a.Error)
	f.docRepo.AssertCalled(t, "UpdateStatus", mock.Anything, doc.ID, domain.DocumentStatusFailed)
	f.issueRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestCancelAnalysisTerminal(t *testing.T) {
	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	a := &domain.Analysis{ID: uuid.New(), Status: domain.AnalysisStatusCompleted}
	f.analysisRepo.On("GetByID", mock.Anything, a.ID).Return(a, nil)

	err := f.svc.CancelAnalysis(context.Background(), a.ID)
	assert.ErrorIs(t, err, domain.ErrAnalysisTerminal)
}

func TestUpdateIssueStatusValidation(t *testing.T) {
	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})

	_, err := f.svc.UpdateIssueStatus(context.Background(), uuid.New(), "archived", "")
	assert.ErrorIs(t, err, domain.ErrInvalidIssueStatus)
	f.issueRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetAnalysisDerivesStatusFromProgress(t *testing.T) {
	f := newFixture([]port.Analyzer{rules.NewDefaultEngine()})
	a := &domain.Analysis{ID: uuid.New(), Status: domain.AnalysisStatusProcessing}

	f.analysisRepo.On("GetByID", mock.Anything, a.ID).Return(a, nil)
	f.progressRepo.On("ListByAnalysis", mock.Anything, a.ID).Return([]domain.WorkflowProgress{
		{Phase: domain.PhaseComplete},
		{Phase: domain.PhaseFailed},
	}, nil)
	f.issueRepo.On("ListByAnalysis", mock.Anything, a.ID).Return([]domain.Issue{}, nil)

	view, err := f.svc.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, err)
	// Every document is terminal and at least one completed.
	assert.Equal(t, domain.AnalysisStatusCompleted, view.Analysis.Status)
}
