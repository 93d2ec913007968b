package extraction

import "context"

// Request is one call to a document intelligence service.
type Request struct {
	Prompt   string
	MIMEType string
	Data     []byte
}

// Service sends a document and a prompt to a generative model and returns
// the text it produced.
type Service interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// MockService is a Service for tests.
type MockService struct {
	GenerateFunc func(ctx context.Context, req Request) (string, error)
}

// Generate calls GenerateFunc.
func (m *MockService) Generate(ctx context.Context, req Request) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}
