package domain

// DocumentType classifies an ingested document.
type DocumentType string

const (
	DocTypeMedicalBill     DocumentType = "medical_bill"
	DocTypeDentalBill      DocumentType = "dental_bill"
	DocTypeEOB             DocumentType = "eob"
	DocTypePharmacyReceipt DocumentType = "pharmacy_receipt"
	DocTypeFSAClaim        DocumentType = "fsa_claim"
	DocTypeClinicalImage   DocumentType = "clinical_image"
	DocTypeOther           DocumentType = "other"
)

// ValidDocumentTypes is used by the handler layer to validate declared types.
var ValidDocumentTypes = map[DocumentType]bool{
	DocTypeMedicalBill:     true,
	DocTypeDentalBill:      true,
	DocTypeEOB:             true,
	DocTypePharmacyReceipt: true,
	DocTypeFSAClaim:        true,
	DocTypeClinicalImage:   true,
	DocTypeOther:           true,
}

// BillLike reports whether the document type carries patient-billed charges.
func (t DocumentType) BillLike() bool {
	switch t {
	case DocTypeMedicalBill, DocTypeDentalBill, DocTypePharmacyReceipt, DocTypeFSAClaim:
		return true
	}
	return false
}

// DocumentStatus represents the lifecycle of an ingested document.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusAnalyzing  DocumentStatus = "analyzing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// AnalysisStatus represents the lifecycle of an analysis run.
type AnalysisStatus string

const (
	AnalysisStatusQueued     AnalysisStatus = "queued"
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// Terminal reports whether the analysis status is terminal.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

// WorkflowPhase is the per-document pipeline stage. Phases advance strictly
// in the order below; failed is reachable from any non-terminal phase.
type WorkflowPhase string

const (
	PhasePreExtraction WorkflowPhase = "pre_extraction_active"
	PhaseExtraction    WorkflowPhase = "extraction_active"
	PhaseLineItems     WorkflowPhase = "line_items_active"
	PhaseAnalysis      WorkflowPhase = "analysis_active"
	PhaseComplete      WorkflowPhase = "complete"
	PhaseFailed        WorkflowPhase = "failed"
)

// Terminal reports whether the phase is terminal.
func (p WorkflowPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// IssueType categorizes a detected billing issue.
type IssueType string

const (
	IssueOvercharge      IssueType = "overcharge"
	IssueDuplicateCharge IssueType = "duplicate_charge"
	IssueCoverageGap     IssueType = "coverage_gap"
	IssueCodeMismatch    IssueType = "code_mismatch"
	IssueMathError       IssueType = "math_error"
	IssueOther           IssueType = "other"
)

// IssueStatus is the caller-mutable review state of an issue.
type IssueStatus string

const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusFollowUp IssueStatus = "follow_up"
	IssueStatusResolved IssueStatus = "resolved"
	IssueStatusIgnored  IssueStatus = "ignored"
)

// ValidIssueStatuses is used by the handler layer to validate status updates.
var ValidIssueStatuses = map[IssueStatus]bool{
	IssueStatusOpen:     true,
	IssueStatusFollowUp: true,
	IssueStatusResolved: true,
	IssueStatusIgnored:  true,
}

// Confidence is the qualitative confidence band on an issue.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// confidenceRank orders confidence bands for merging.
var confidenceRank = map[Confidence]int{
	ConfidenceLow:    1,
	ConfidenceMedium: 2,
	ConfidenceHigh:   3,
}

// MaxConfidence returns the higher of two confidence bands.
func MaxConfidence(a, b Confidence) Confidence {
	if confidenceRank[b] > confidenceRank[a] {
		return b
	}
	return a
}

// ConfidenceAtLeast reports whether a is at or above the b band.
func ConfidenceAtLeast(a, b Confidence) bool {
	return confidenceRank[a] >= confidenceRank[b]
}

// AllowedContentTypes maps accepted MIME content types to a short label.
var AllowedContentTypes = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"text/plain":      "txt",
}
