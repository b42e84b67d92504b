package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document represents an ingested document owned by a profile. The record is
// immutable after upload except for status and enrichment metadata.
type Document struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	ProfileID     uuid.UUID      `db:"profile_id" json:"profile_id"`
	Name          string         `db:"name" json:"name"`
	ContentType   string         `db:"content_type" json:"content_type"`
	DeclaredType  DocumentType   `db:"declared_type" json:"declared_type"`
	DocumentType  DocumentType   `db:"document_type" json:"document_type"`
	Status        DocumentStatus `db:"status" json:"status"`
	StorageBucket string         `db:"storage_bucket" json:"-"`
	StorageKey    string         `db:"storage_key" json:"-"`
	ServiceDate   *time.Time     `db:"service_date" json:"service_date"`
	PatientOwed   *float64       `db:"patient_owed" json:"patient_owed"`
	Action        string         `db:"action" json:"action"`
	Notes         string         `db:"notes" json:"notes"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Analysis groups one or more documents' results under one run.
type Analysis struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	ProfileID      uuid.UUID       `db:"profile_id" json:"profile_id"`
	Status         AnalysisStatus  `db:"status" json:"status"`
	Provider       string          `db:"provider" json:"provider"`
	CoverageMatrix json.RawMessage `db:"coverage_matrix" json:"coverage_matrix"`
	TotalSavings   float64         `db:"total_savings" json:"total_savings_detected"`
	Error          string          `db:"error" json:"error,omitempty"`
	Attempts       int             `db:"attempts" json:"attempts"`
	RetryAfter     *time.Time      `db:"retry_after" json:"retry_after,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at"`
}

// Evidence is one supporting fact reference on an issue, ranked by strength.
type Evidence struct {
	DocumentID uuid.UUID `json:"document_id"`
	FactRef    string    `json:"fact_ref"` // e.g. "line_items[3]" or "totals"
	Note       string    `json:"note,omitempty"`
	Rank       int       `json:"rank"`
}

// Issue is a detected likely billing error. Only Status and Notes are
// mutable after creation.
type Issue struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	AnalysisID  uuid.UUID       `db:"analysis_id" json:"analysis_id"`
	DocumentID  *uuid.UUID      `db:"document_id" json:"document_id"` // nil for cross-document findings
	Type        IssueType       `db:"issue_type" json:"issue_type"`
	Summary     string          `db:"summary" json:"summary"`
	Evidence    json.RawMessage `db:"evidence" json:"evidence"`
	MaxSavings  float64         `db:"max_savings" json:"max_savings"`
	Confidence  Confidence      `db:"confidence" json:"confidence"`
	Source      string          `db:"source" json:"source"`
	Status      IssueStatus     `db:"status" json:"status"`
	Notes       string          `db:"notes" json:"notes"`
	DedupKey    string          `db:"dedup_key" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CandidateIssue is an issue as emitted by an analyzer or the reconciliation
// engine, before merging and deduplication.
type CandidateIssue struct {
	DocumentID  *uuid.UUID `json:"document_id,omitempty"`
	Type        IssueType  `json:"issue_type"`
	Code        string     `json:"code"`
	ServiceDate string     `json:"service_date"` // YYYY-MM-DD, empty if unknown
	Amount      float64    `json:"amount"`
	Summary     string     `json:"summary"`
	MaxSavings  float64    `json:"max_savings"`
	Confidence  Confidence `json:"confidence"`
	Source      string     `json:"source"`
	Evidence    []Evidence `json:"evidence"`
}

// WorkflowProgress is the per-document, per-analysis progress record. It is
// mutated only by the single pipeline task owning the document and replaced
// whole on every write.
type WorkflowProgress struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AnalysisID    uuid.UUID       `db:"analysis_id" json:"analysis_id"`
	DocumentID    uuid.UUID       `db:"document_id" json:"document_id"`
	Phase         WorkflowPhase   `db:"phase" json:"phase"`
	FurthestPhase WorkflowPhase   `db:"furthest_phase" json:"furthest_phase"`
	ErrorMessage  string          `db:"error_message" json:"error_message,omitempty"`
	WorkflowLog   json.RawMessage `db:"workflow_log" json:"workflow_log"`
	Facts         json.RawMessage `db:"facts" json:"facts"`
	StartedAt     time.Time       `db:"started_at" json:"started_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at"`
	FailedAt      *time.Time      `db:"failed_at" json:"failed_at"`
}

// WorkflowLog captures extractor selection and per-subtype outcomes for one
// document run. Stored as JSONB on the progress record.
type WorkflowLog struct {
	Classifier       string            `json:"classifier,omitempty"`
	ClassifiedAs     DocumentType      `json:"classified_as,omitempty"`
	ClassifierScore  float64           `json:"classifier_score,omitempty"`
	Extractor        string            `json:"extractor,omitempty"`
	SelectionReason  string            `json:"extractor_selection_reason,omitempty"`
	ItemCounts       map[string]int    `json:"item_counts,omitempty"`
	ExtractionErrors map[string]string `json:"extraction_errors,omitempty"`
	AnalyzerSources  []string          `json:"analyzer_sources,omitempty"`
	AnalyzerErrors   map[string]string `json:"analyzer_errors,omitempty"`
}
