package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/analyzer"
	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/extractor"
	"reclaim/internal/facts"
	"reclaim/internal/port"
	"reclaim/internal/reconcile"
	"reclaim/internal/workflow"
)

const analysisRunTimeout = 10 * time.Minute

// orphanClaimDelay is the initial retry_after on a fresh run. The queue
// worker only claims queued runs past their retry_after, so a new run stays
// out of its reach unless the launching process dies before marking it
// processing.
const orphanClaimDelay = time.Minute

// RunAnalysisInput is the DTO for starting an analysis over a document batch.
type RunAnalysisInput struct {
	ProfileID   uuid.UUID
	DocumentIDs []uuid.UUID
}

// AnalysisView is the aggregate a status poll returns: the analysis row,
// per-document progress, and whatever issues exist so far.
type AnalysisView struct {
	Analysis *domain.Analysis          `json:"analysis"`
	Progress []domain.WorkflowProgress `json:"progress"`
	Issues   []domain.Issue            `json:"issues"`
}

// AnalysisService defines the analysis orchestration contract.
type AnalysisService interface {
	RunAnalysis(ctx context.Context, input *RunAnalysisInput) (*domain.Analysis, error)
	GetAnalysis(ctx context.Context, analysisID uuid.UUID) (*AnalysisView, error)
	CancelAnalysis(ctx context.Context, analysisID uuid.UUID) error
	UpdateIssueStatus(ctx context.Context, issueID uuid.UUID, status domain.IssueStatus, notes string) (*domain.Issue, error)
	ListIssues(ctx context.Context, analysisID uuid.UUID) ([]domain.Issue, error)
	// ProcessAnalysis runs the pipeline for an analysis already marked
	// processing. Called by the background launcher and the queue worker.
	ProcessAnalysis(ctx context.Context, a *domain.Analysis, maxAttempts int)
}

type analysisService struct {
	docRepo      port.DocumentRepository
	analysisRepo port.AnalysisRepository
	issueRepo    port.IssueRepository
	progressRepo port.ProgressRepository
	storage      port.ObjectStorage
	classifier   port.Classifier
	extractors   *extractor.Registry
	analyzers    []port.Analyzer
	reconciler   *reconcile.Engine
	merger       *analyzer.Merger
	queueCfg     config.QueueConfig

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewAnalysisService creates the orchestrator. The analyzers slice is the
// full backend set for every run: local backends plus the configured remote
// providers (already wrapped with retry/ensemble).
func NewAnalysisService(
	docRepo port.DocumentRepository,
	analysisRepo port.AnalysisRepository,
	issueRepo port.IssueRepository,
	progressRepo port.ProgressRepository,
	storage port.ObjectStorage,
	docClassifier port.Classifier,
	extractors *extractor.Registry,
	analyzers []port.Analyzer,
	reconciler *reconcile.Engine,
	merger *analyzer.Merger,
	queueCfg config.QueueConfig,
) AnalysisService {
	return &analysisService{
		docRepo:      docRepo,
		analysisRepo: analysisRepo,
		issueRepo:    issueRepo,
		progressRepo: progressRepo,
		storage:      storage,
		classifier:   docClassifier,
		extractors:   extractors,
		analyzers:    analyzers,
		reconciler:   reconciler,
		merger:       merger,
		queueCfg:     queueCfg,
		cancels:      make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *analysisService) RunAnalysis(ctx context.Context, input *RunAnalysisInput) (*domain.Analysis, error) {
	if len(input.DocumentIDs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	if len(s.analyzers) == 0 {
		return nil, domain.ErrNoProviderConfigured
	}

	docs, err := s.docRepo.ListByIDs(ctx, input.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	if len(docs) != len(input.DocumentIDs) {
		return nil, domain.ErrDocumentNotFound
	}
	for i := range docs {
		if docs[i].ProfileID != input.ProfileID {
			return nil, domain.ErrDocumentNotFound
		}
	}

	retryAt := time.Now().UTC().Add(orphanClaimDelay)
	a := &domain.Analysis{
		ID:         uuid.New(),
		ProfileID:  input.ProfileID,
		Status:     domain.AnalysisStatusQueued,
		Provider:   sourceList(s.analyzers),
		RetryAfter: &retryAt,
	}
	if err := s.analysisRepo.Create(ctx, a, input.DocumentIDs); err != nil {
		return nil, fmt.Errorf("creating analysis: %w", err)
	}

	// Copy before launching so the caller's value is independent of
	// background work.
	result := *a
	go s.runInBackground(a.ID)

	return &result, nil
}

func (s *analysisService) runInBackground(analysisID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), analysisRunTimeout)
	defer cancel()
	s.registerCancel(analysisID, cancel)
	defer s.unregisterCancel(analysisID)

	log.Printf("analysisService.runInBackground: starting analysis %s", analysisID)

	a, err := s.analysisRepo.GetByID(ctx, analysisID)
	if err != nil {
		log.Printf("analysisService.runInBackground: failed to get analysis %s: %v", analysisID, err)
		return
	}
	if a.Status != domain.AnalysisStatusQueued {
		// The queue worker beat us to it.
		log.Printf("analysisService.runInBackground: analysis %s already claimed (status %s)", analysisID, a.Status)
		return
	}
	a.Attempts++
	a.Status = domain.AnalysisStatusProcessing
	if err := s.analysisRepo.Update(ctx, a); err != nil {
		log.Printf("analysisService.runInBackground: failed to set processing status for %s: %v", analysisID, err)
		return
	}

	s.ProcessAnalysis(ctx, a, s.queueCfg.MaxRetries)
}

// docResult is one document's pipeline output inside a run.
type docResult struct {
	doc        *domain.Document
	tracker    *workflow.Tracker
	facts      *facts.FactModel
	candidates []domain.CandidateIssue
	// transientOnly is true when every analyzer that failed for this
	// document failed transiently and none succeeded.
	transientOnly bool
	succeeded     int
	failed        bool
}

// ProcessAnalysis performs the core pipeline: per-document classification
// and extraction in parallel, a single cross-document reconciliation pass,
// per-document analyzer fan-out, then merge and persist. A document's
// failure never fails its siblings; the analysis fails only when every
// document does.
func (s *analysisService) ProcessAnalysis(ctx context.Context, a *domain.Analysis, maxAttempts int) {
	docIDs, err := s.analysisRepo.DocumentIDs(ctx, a.ID)
	if err != nil {
		s.failAnalysis(ctx, a, fmt.Sprintf("loading document ids: %v", err))
		return
	}
	docs, err := s.docRepo.ListByIDs(ctx, docIDs)
	if err != nil {
		s.failAnalysis(ctx, a, fmt.Sprintf("loading documents: %v", err))
		return
	}
	if len(docs) == 0 {
		s.failAnalysis(ctx, a, "no documents in analysis")
		return
	}

	// Stage 1: classification and extraction, one goroutine per document.
	results := make([]*docResult, len(docs))
	var wg sync.WaitGroup
	for i := range docs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.extractDocument(ctx, a.ID, &docs[i])
		}()
	}
	wg.Wait()

	// Stage 2: one reconciliation pass over every extracted fact model.
	models := make([]*facts.FactModel, 0, len(results))
	for _, r := range results {
		if !r.failed && r.facts != nil {
			models = append(models, r.facts)
		}
	}
	recon := s.reconciler.Reconcile(models)
	if matrixJSON, jsonErr := json.Marshal(&recon.Matrix); jsonErr == nil {
		a.CoverageMatrix = matrixJSON
	}

	// Stage 3: analyzer fan-out per document, siblings' facts attached.
	for i := range results {
		i := i
		if results[i].failed {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.analyzeDocument(ctx, results[i], siblingsOf(models, results[i].facts))
		}()
	}
	wg.Wait()

	// Rate-limit circuit: when no analyzer produced anything anywhere and
	// every analyzer failure was transient, the run is re-queued rather
	// than failed, up to the attempt budget.
	if s.shouldRequeue(results, a, maxAttempts) {
		s.requeueAnalysis(ctx, a, results)
		return
	}
	// Rate-limited documents that cannot be requeued fail at analysis_active.
	for _, r := range results {
		if !r.failed && r.transientOnly {
			s.failDocument(context.WithoutCancel(ctx), r, "all analyzer backends failed")
		}
	}

	// Stage 4: merge everything into final issues.
	candidates := append([]domain.CandidateIssue{}, recon.Candidates...)
	candidates = append(candidates, s.merger.PromoteGaps(&recon.Matrix)...)
	for _, r := range results {
		candidates = append(candidates, r.candidates...)
	}
	issues := s.merger.Merge(a.ID, candidates)

	persistCtx := context.WithoutCancel(ctx)
	if len(issues) > 0 {
		if err := s.issueRepo.CreateBatch(persistCtx, issues); err != nil {
			s.failAnalysis(persistCtx, a, fmt.Sprintf("saving issues: %v", err))
			return
		}
	}

	s.finishAnalysis(persistCtx, a, results, issues)
}

// extractDocument runs one document through classification and extraction.
// Never returns nil; failures are recorded on the result and the document's
// progress.
func (s *analysisService) extractDocument(ctx context.Context, analysisID uuid.UUID, doc *domain.Document) *docResult {
	r := &docResult{doc: doc}
	persistCtx := context.WithoutCancel(ctx)

	tracker, err := workflow.NewTracker(persistCtx, s.progressRepo, workflow.NewProgress(analysisID, doc.ID))
	if err != nil {
		log.Printf("analysisService.extractDocument: document %s: %v", doc.ID, err)
		r.failed = true
		return r
	}
	r.tracker = tracker

	if err := s.docRepo.UpdateStatus(persistCtx, doc.ID, domain.DocumentStatusAnalyzing); err != nil {
		log.Printf("analysisService.extractDocument: failed to set analyzing status for %s: %v", doc.ID, err)
	}

	if ctx.Err() != nil {
		s.failDocument(persistCtx, r, "analysis canceled")
		return r
	}

	// Raw bytes live only for this run.
	data, err := s.storage.Download(ctx, doc.StorageBucket, doc.StorageKey)
	if err != nil {
		s.failDocument(persistCtx, r, fmt.Sprintf("downloading document: %v", err))
		return r
	}
	text := textFromBytes(doc.ContentType, data)

	classification, err := s.classifier.Classify(ctx, port.ClassifyInput{
		Text:         text,
		ContentType:  doc.ContentType,
		DeclaredType: doc.DeclaredType,
	})
	if err != nil {
		// Classification never fails the pipeline; fall back to the
		// declared hint.
		log.Printf("analysisService.extractDocument: classifier error for %s: %v", doc.ID, err)
		classification = &port.Classification{DocumentType: doc.DeclaredType, Rationale: "classifier unavailable"}
		if classification.DocumentType == "" {
			classification.DocumentType = domain.DocTypeOther
		}
	}
	wlog := tracker.Log()
	wlog.Classifier = s.classifier.Name()
	wlog.ClassifiedAs = classification.DocumentType
	wlog.ClassifierScore = classification.Confidence
	doc.DocumentType = classification.DocumentType
	if err := s.docRepo.UpdateEnrichment(persistCtx, doc); err != nil {
		log.Printf("analysisService.extractDocument: failed to save classification for %s: %v", doc.ID, err)
	}

	if err := tracker.Advance(persistCtx, domain.PhaseExtraction); err != nil {
		s.failDocument(persistCtx, r, fmt.Sprintf("advancing workflow: %v", err))
		return r
	}

	strategy, reason := s.extractors.Select(classification.DocumentType)
	wlog.Extractor = strategy.Name()
	wlog.SelectionReason = reason

	model, err := strategy.Extract(ctx, extractor.Input{
		DocumentID:   doc.ID,
		DocumentType: classification.DocumentType,
		Text:         text,
	})
	if err != nil {
		// Extraction errors are recorded, not fatal: analysis proceeds
		// with whatever partial facts exist.
		if wlog.ExtractionErrors == nil {
			wlog.ExtractionErrors = make(map[string]string)
		}
		wlog.ExtractionErrors[strategy.Name()] = err.Error()
		log.Printf("analysisService.extractDocument: extraction error for %s: %v", doc.ID, err)
	}
	if model == nil {
		model = &facts.FactModel{
			DocumentID:   doc.ID,
			DocumentType: classification.DocumentType,
			ExtractedAt:  time.Now().UTC(),
		}
	}
	r.facts = model

	if err := tracker.Advance(persistCtx, domain.PhaseLineItems); err != nil {
		s.failDocument(persistCtx, r, fmt.Sprintf("advancing workflow: %v", err))
		return r
	}

	wlog.ItemCounts = map[string]int{"line_items": model.ItemCount()}
	if factsJSON, jsonErr := json.Marshal(model); jsonErr == nil {
		tracker.SetFacts(factsJSON)
	}
	if err := tracker.Advance(persistCtx, domain.PhaseAnalysis); err != nil {
		s.failDocument(persistCtx, r, fmt.Sprintf("advancing workflow: %v", err))
		return r
	}
	return r
}

// analyzeDocument fans the document's facts out to every analyzer backend.
// A backend's failure contributes zero issues and is recorded; it never
// blocks the other backends.
func (s *analysisService) analyzeDocument(ctx context.Context, r *docResult, siblings []*facts.FactModel) {
	persistCtx := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		s.failDocument(persistCtx, r, "analysis canceled")
		return
	}

	input := port.AnalyzeInput{
		Facts:        r.facts,
		SiblingFacts: siblings,
		DocumentType: r.facts.DocumentType,
	}

	wlog := r.tracker.Log()
	type analyzeOut struct {
		source string
		issues []domain.CandidateIssue
		err    error
	}
	outs := make([]analyzeOut, len(s.analyzers))
	var wg sync.WaitGroup
	for i, backend := range s.analyzers {
		i, backend := i, backend
		wg.Add(1)
		go func() {
			defer wg.Done()
			issues, err := backend.Analyze(ctx, input)
			outs[i] = analyzeOut{source: backend.Source(), issues: issues, err: err}
		}()
	}
	wg.Wait()

	transientOnly := true
	for _, out := range outs {
		if out.err != nil {
			if wlog.AnalyzerErrors == nil {
				wlog.AnalyzerErrors = make(map[string]string)
			}
			wlog.AnalyzerErrors[out.source] = out.err.Error()
			if !analyzer.IsTransient(out.err) {
				transientOnly = false
			}
			log.Printf("analysisService.analyzeDocument: %s failed for document %s: %v", out.source, r.doc.ID, out.err)
			continue
		}
		r.succeeded++
		wlog.AnalyzerSources = append(wlog.AnalyzerSources, out.source)
		r.candidates = append(r.candidates, out.issues...)
	}
	r.transientOnly = r.succeeded == 0 && len(outs) > 0 && transientOnly

	if ctx.Err() != nil {
		s.failDocument(persistCtx, r, "analysis canceled")
		return
	}
	if r.succeeded == 0 {
		if r.transientOnly {
			// Requeue is a batch-level decision; the document stays at
			// analysis_active until ProcessAnalysis settles it.
			return
		}
		s.failDocument(persistCtx, r, "all analyzer backends failed")
		return
	}
	if err := r.tracker.Advance(persistCtx, domain.PhaseComplete); err != nil {
		s.failDocument(persistCtx, r, fmt.Sprintf("advancing workflow: %v", err))
		return
	}
	if err := s.docRepo.UpdateStatus(persistCtx, r.doc.ID, domain.DocumentStatusCompleted); err != nil {
		log.Printf("analysisService.analyzeDocument: failed to set completed status for %s: %v", r.doc.ID, err)
	}
}

func (s *analysisService) failDocument(ctx context.Context, r *docResult, msg string) {
	r.failed = true
	if r.tracker != nil {
		r.tracker.Fail(ctx, msg)
	}
	if err := s.docRepo.UpdateStatus(ctx, r.doc.ID, domain.DocumentStatusFailed); err != nil {
		log.Printf("analysisService.failDocument: failed to set failed status for %s: %v", r.doc.ID, err)
	}
}

// shouldRequeue reports whether the run hit the rate-limit circuit: zero
// analyzer output anywhere, every analyzer failure transient, attempts left.
func (s *analysisService) shouldRequeue(results []*docResult, a *domain.Analysis, maxAttempts int) bool {
	if a.Attempts >= maxAttempts {
		return false
	}
	sawDoc := false
	for _, r := range results {
		if r.failed {
			continue
		}
		sawDoc = true
		if !r.transientOnly {
			return false
		}
	}
	return sawDoc
}

func (s *analysisService) requeueAnalysis(ctx context.Context, a *domain.Analysis, results []*docResult) {
	retryAt := time.Now().Add(time.Minute)
	a.Status = domain.AnalysisStatusQueued
	a.Error = "all analyzer backends rate limited, queued for retry"
	a.RetryAfter = &retryAt
	persistCtx := context.WithoutCancel(ctx)
	if err := s.analysisRepo.Update(persistCtx, a); err != nil {
		log.Printf("analysisService.requeueAnalysis: failed to queue analysis %s: %v", a.ID, err)
		return
	}
	log.Printf("analysisService.requeueAnalysis: analysis %s queued for retry after %s", a.ID, retryAt.Format(time.RFC3339))
}

func (s *analysisService) finishAnalysis(ctx context.Context, a *domain.Analysis, results []*docResult, issues []domain.Issue) {
	completed, failed := 0, 0
	var firstErr string
	for _, r := range results {
		if r.failed {
			failed++
			if firstErr == "" && r.tracker != nil {
				firstErr = r.tracker.Progress().ErrorMessage
			}
		} else {
			completed++
		}
	}

	now := time.Now().UTC()
	a.TotalSavings = analyzer.TotalSavings(issues)
	a.RetryAfter = nil
	a.CompletedAt = &now
	if completed == 0 {
		a.Status = domain.AnalysisStatusFailed
		a.Error = firstErr
		if a.Error == "" {
			a.Error = "all documents failed"
		}
	} else {
		a.Status = domain.AnalysisStatusCompleted
		a.Error = ""
		if failed > 0 {
			a.Error = fmt.Sprintf("%d of %d documents failed", failed, len(results))
		}
	}
	if err := s.analysisRepo.Update(ctx, a); err != nil {
		log.Printf("analysisService.finishAnalysis: failed to save analysis %s: %v", a.ID, err)
		return
	}
	log.Printf("analysisService.finishAnalysis: analysis %s %s (%d issues, $%.2f potential savings)",
		a.ID, a.Status, len(issues), a.TotalSavings)
}

func (s *analysisService) failAnalysis(ctx context.Context, a *domain.Analysis, msg string) {
	log.Printf("analysisService.failAnalysis: analysis %s failed: %s", a.ID, msg)
	now := time.Now().UTC()
	a.Status = domain.AnalysisStatusFailed
	a.Error = msg
	a.RetryAfter = nil
	a.CompletedAt = &now
	if err := s.analysisRepo.Update(context.WithoutCancel(ctx), a); err != nil {
		log.Printf("analysisService.failAnalysis: failed to update analysis %s: %v", a.ID, err)
	}
}

func (s *analysisService) GetAnalysis(ctx context.Context, analysisID uuid.UUID) (*AnalysisView, error) {
	a, err := s.analysisRepo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	progress, err := s.progressRepo.ListByAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	issues, err := s.issueRepo.ListByAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("loading issues: %w", err)
	}

	// The batch status is derived from per-document phases while the run
	// is in flight; partial results are always visible.
	if a.Status == domain.AnalysisStatusProcessing && len(progress) > 0 {
		a.Status = deriveStatus(progress)
	}

	return &AnalysisView{Analysis: a, Progress: progress, Issues: issues}, nil
}

func deriveStatus(progress []domain.WorkflowProgress) domain.AnalysisStatus {
	allTerminal, allFailed := true, true
	for i := range progress {
		if !progress[i].Phase.Terminal() {
			allTerminal = false
		}
		if progress[i].Phase != domain.PhaseFailed {
			allFailed = false
		}
	}
	switch {
	case !allTerminal:
		return domain.AnalysisStatusProcessing
	case allFailed:
		return domain.AnalysisStatusFailed
	default:
		return domain.AnalysisStatusCompleted
	}
}

func (s *analysisService) CancelAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	a, err := s.analysisRepo.GetByID(ctx, analysisID)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return domain.ErrAnalysisTerminal
	}

	s.mu.Lock()
	cancel, ok := s.cancels[analysisID]
	s.mu.Unlock()
	if ok {
		// In-flight provider calls run to their own deadline; no new
		// calls start after this.
		cancel()
		log.Printf("analysisService.CancelAnalysis: analysis %s canceled", analysisID)
		return nil
	}

	// Not running here (queued, or claimed by another process that died).
	s.failAnalysis(ctx, a, "analysis canceled")
	return nil
}

func (s *analysisService) UpdateIssueStatus(ctx context.Context, issueID uuid.UUID, status domain.IssueStatus, notes string) (*domain.Issue, error) {
	if !domain.ValidIssueStatuses[status] {
		return nil, domain.ErrInvalidIssueStatus
	}
	issue, err := s.issueRepo.UpdateStatus(ctx, issueID, status, notes)
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *analysisService) ListIssues(ctx context.Context, analysisID uuid.UUID) ([]domain.Issue, error) {
	if _, err := s.analysisRepo.GetByID(ctx, analysisID); err != nil {
		return nil, err
	}
	return s.issueRepo.ListByAnalysis(ctx, analysisID)
}

func (s *analysisService) registerCancel(analysisID uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[analysisID] = cancel
}

func (s *analysisService) unregisterCancel(analysisID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, analysisID)
}

// siblingsOf returns every fact model in the batch except the document's own.
func siblingsOf(models []*facts.FactModel, own *facts.FactModel) []*facts.FactModel {
	var out []*facts.FactModel
	for _, m := range models {
		if m != own {
			out = append(out, m)
		}
	}
	return out
}

// textFromBytes extracts analyzable text from raw document bytes. Binary
// formats yield no text; the classifier and extractors handle that as a
// low-information document rather than an error.
func textFromBytes(contentType string, data []byte) string {
	switch contentType {
	case "text/plain", "application/json":
		return string(data)
	default:
		return ""
	}
}

func sourceList(analyzers []port.Analyzer) string {
	names := ""
	for i, b := range analyzers {
		if i > 0 {
			names += ","
		}
		names += b.Source()
	}
	return names
}
