package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
)

// DefaultClaudeModel is used when no model is configured.
const DefaultClaudeModel = "claude-sonnet-4-5-20250929"

// AnthropicConfig configures AnthropicService.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// AnthropicService calls the Claude Messages API.
type AnthropicService struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicService creates a client for cfg.
func NewAnthropicService(cfg AnthropicConfig) (*AnthropicService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewAnthropicService: %w", apperror.ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxOutputTokens
	}
	return &AnthropicService{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Generate sends the document as a base64 block followed by the prompt.
func (s *AnthropicService) Generate(ctx context.Context, req Request) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(req.Data)

	var docBlock anthropic.ContentBlockParamUnion
	if req.MIMEType == "application/pdf" {
		docBlock = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encoded})
	} else {
		docBlock = anthropic.NewImageBlockBase64(imageMediaType(req.MIMEType), encoded)
	}

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(docBlock, anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		upstream := &apperror.UpstreamError{Service: "anthropic", Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			upstream.StatusCode = apiErr.StatusCode
		}
		return "", upstream
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// imageMediaType maps image/jpg, which Claude rejects, to image/jpeg.
func imageMediaType(mimeType string) string {
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}
