package extraction

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.0-flash"

	DefaultTemperature     = 0.1
	DefaultMaxOutputTokens = 8192
)

// GeminiConfig configures GeminiService.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiService calls the Gemini API through the genai SDK.
type GeminiService struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiService creates a client for cfg. An empty API key fails with
// apperror.ErrMissingCredential.
func NewGeminiService(ctx context.Context, cfg GeminiConfig) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewGeminiService: %w", apperror.ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiService: create genai client: %w", err)
	}

	return &GeminiService{
		client: client,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.Temperature),
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}, nil
}

// Generate sends the prompt and the inline document to the model.
func (s *GeminiService) Generate(ctx context.Context, req Request) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: req.Prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: req.MIMEType,
						Data:     req.Data,
					},
				},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, s.config)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	return resp.Text(), nil
}

func classifyGeminiError(err error) error {
	upstream := &apperror.UpstreamError{Service: "gemini", Err: err}
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		upstream.StatusCode = apiErr.Code
	case errors.As(err, &apiErrPtr):
		upstream.StatusCode = apiErrPtr.Code
	}
	return upstream
}
