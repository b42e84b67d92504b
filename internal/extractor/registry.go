package extractor

import (
	"fmt"

	"reclaim/internal/domain"
)

// Registry maps document types to extraction strategies.
type Registry struct {
	strategies map[domain.DocumentType]Strategy
	fallback   Strategy
}

// NewRegistry creates an empty registry with the given fallback strategy.
func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		strategies: make(map[domain.DocumentType]Strategy),
		fallback:   fallback,
	}
}

// Register binds a strategy to a document type.
func (r *Registry) Register(docType domain.DocumentType, s Strategy) {
	r.strategies[docType] = s
}

// Select returns the strategy for a document type along with the selection
// reason recorded on the workflow log. Unknown types fall back to the
// generic strategy rather than failing.
func (r *Registry) Select(docType domain.DocumentType) (Strategy, string) {
	if s, ok := r.strategies[docType]; ok {
		return s, fmt.Sprintf("registered strategy %q for document type %q", s.Name(), docType)
	}
	return r.fallback, fmt.Sprintf("no strategy registered for document type %q, using fallback %q", docType, r.fallback.Name())
}

// NewDefaultRegistry wires every built-in strategy.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(NewGenericExtractor())
	r.Register(domain.DocTypeMedicalBill, NewMedicalBillExtractor())
	r.Register(domain.DocTypeDentalBill, NewDentalBillExtractor())
	r.Register(domain.DocTypeEOB, NewEOBExtractor())
	r.Register(domain.DocTypePharmacyReceipt, NewPharmacyReceiptExtractor())
	r.Register(domain.DocTypeFSAClaim, NewFSAClaimExtractor())
	return r
}
