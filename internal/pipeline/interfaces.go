package pipeline

import (
	"context"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// BatchExtractor turns document bytes into an extracted batch.
// extraction.Extractor is the production implementation.
type BatchExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, dateFormatHint string) (*domain.ExtractedBatch, error)
}

// MockExtractor is a mock implementation of BatchExtractor for testing.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, data []byte, mimeType, dateFormatHint string) (*domain.ExtractedBatch, error)
}

// Extract implements BatchExtractor.
func (m *MockExtractor) Extract(ctx context.Context, data []byte, mimeType, dateFormatHint string) (*domain.ExtractedBatch, error) {
	return m.ExtractFunc(ctx, data, mimeType, dateFormatHint)
}
