package domain

import "errors"

var (
	ErrNotFound               = errors.New("resource not found")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrAnalysisNotFound       = errors.New("analysis not found")
	ErrIssueNotFound          = errors.New("issue not found")
	ErrAnalysisTerminal       = errors.New("analysis already reached a terminal state")
	ErrNoDocuments            = errors.New("analysis requires at least one document")
	ErrNoProviderConfigured   = errors.New("no analyzer provider configured")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrInvalidIssueStatus     = errors.New("invalid issue status")
	ErrInvalidPhaseTransition = errors.New("invalid workflow phase transition")
)
