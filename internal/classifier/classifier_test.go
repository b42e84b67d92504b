package classifier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/classifier"
	"reclaim/internal/domain"
	"reclaim/internal/port"
)

func classify(t *testing.T, input port.ClassifyInput) *port.Classification {
	t.Helper()
	out, err := classifier.NewKeywordClassifier().Classify(context.Background(), input)
	require.NoError(t, err)
	return out
}

func TestKeywordClassifierEOB(t *testing.T) {
	text := `EXPLANATION OF BENEFITS
THIS IS NOT A BILL
Claim Number: 2025-88123
Allowed Amount: $80.00  Plan Paid: $64.00  Member Responsibility: $16.00`

	out := classify(t, port.ClassifyInput{Text: text})
	assert.Equal(t, domain.DocTypeEOB, out.DocumentType)
	assert.Greater(t, out.Confidence, 0.5)
}

func TestKeywordClassifierDentalBill(t *testing.T) {
	text := `SMILE DENTAL ASSOCIATES, DDS
Statement of services
D1110 Prophylaxis - adult   $120.00
D0120 Periodic oral evaluation  $60.00
Balance due: $180.00`

	out := classify(t, port.ClassifyInput{Text: text})
	assert.Equal(t, domain.DocTypeDentalBill, out.DocumentType)
}

func TestKeywordClassifierPharmacyReceipt(t *testing.T) {
	text := `CORNER PHARMACY
RX# 1234567  Refill 2 of 5
NDC 00093-1011-01
Days Supply: 30  Copay: $10.00`

	out := classify(t, port.ClassifyInput{Text: text})
	assert.Equal(t, domain.DocTypePharmacyReceipt, out.DocumentType)
}

func TestKeywordClassifierUnrecognizedFallsBackToDeclared(t *testing.T) {
	out := classify(t, port.ClassifyInput{
		Text:         "quarterly newsletter about gardening",
		DeclaredType: domain.DocTypeFSAClaim,
	})
	assert.Equal(t, domain.DocTypeFSAClaim, out.DocumentType)
	assert.Less(t, out.Confidence, 0.5)
}

func TestKeywordClassifierUnrecognizedWithoutHint(t *testing.T) {
	out := classify(t, port.ClassifyInput{Text: "quarterly newsletter about gardening"})
	assert.Equal(t, domain.DocTypeOther, out.DocumentType)
}

func TestKeywordClassifierEmptyTextImageContent(t *testing.T) {
	out := classify(t, port.ClassifyInput{ContentType: "image/png"})
	assert.Equal(t, domain.DocTypeClinicalImage, out.DocumentType)
}

func TestKeywordClassifierDeterministic(t *testing.T) {
	input := port.ClassifyInput{Text: "explanation of benefits, claim number 42, allowed amount $10"}
	first := classify(t, input)
	for i := 0; i < 5; i++ {
		again := classify(t, input)
		assert.Equal(t, first.DocumentType, again.DocumentType)
		assert.Equal(t, first.Confidence, again.Confidence)
		assert.Equal(t, first.Rationale, again.Rationale)
	}
}

func TestStubClassifierKeyedText(t *testing.T) {
	stub := classifier.NewStubClassifier()
	stub.Key("some bill text", port.Classification{
		DocumentType: domain.DocTypeMedicalBill,
		Confidence:   0.9,
	})

	out, err := stub.Classify(context.Background(), port.ClassifyInput{Text: "some bill text"})
	require.NoError(t, err)
	assert.Equal(t, domain.DocTypeMedicalBill, out.DocumentType)

	miss, err := stub.Classify(context.Background(), port.ClassifyInput{Text: "unkeyed"})
	require.NoError(t, err)
	assert.Equal(t, domain.DocTypeOther, miss.DocumentType)
}
