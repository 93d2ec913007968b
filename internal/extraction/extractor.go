package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// DefaultMaxAttempts is the number of calls made per document, counting the
// first one.
const DefaultMaxAttempts = 3

// Options configures an Extractor.
type Options struct {
	MaxAttempts    int
	Transport      Transport
	RepairAttempts int
	// Limiter throttles calls to the service. Nil means unlimited.
	Limiter *rate.Limiter
}

// Extractor turns a document into an ExtractedBatch using a Service.
type Extractor struct {
	svc    Service
	parser *Parser
	opts   Options
}

// NewExtractor creates an extractor backed by svc.
func NewExtractor(svc Service, opts Options) *Extractor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Transport == "" {
		opts.Transport = TransportBrace
	}
	return &Extractor{
		svc:    svc,
		parser: NewParser(opts.RepairAttempts),
		opts:   opts,
	}
}

// Extract sends data to the service, retrying failed calls without backoff,
// and parses the response. Parse failures are not retried.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, dateFormatHint string) (*domain.ExtractedBatch, error) {
	log := logger.FromContext(ctx)

	req := Request{
		Prompt:   BuildPrompt(e.opts.Transport, dateFormatHint),
		MIMEType: mimeType,
		Data:     data,
	}

	raw, err := e.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	parsed, err := e.parser.Parse(ctx, raw)
	if err != nil {
		log.Error().Err(err).Int("response_len", len(raw)).Msg("failed to parse model response")
		return nil, fmt.Errorf("Extract: parse response: %w", err)
	}

	log.Info().
		Str("form", parsed.Form.String()).
		Str("account_type", string(parsed.Batch.AccountType)).
		Str("account_name", parsed.Batch.AccountName).
		Int("transactions", len(parsed.Batch.Transactions)).
		Msg("extracted transactions")
	return parsed.Batch, nil
}

func (e *Extractor) generate(ctx context.Context, req Request) (string, error) {
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if e.opts.Limiter != nil {
			if err := e.opts.Limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("Extract: rate limiter: %w", err)
			}
		}

		text, err := e.svc.Generate(ctx, req)
		if err == nil {
			err = checkResponse(text, e.opts.Transport)
		}
		if err == nil {
			return text, nil
		}

		err = classify(err)
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", e.opts.MaxAttempts).Msg("document intelligence call failed")
	}
	return "", fmt.Errorf("Extract: %w", lastErr)
}

func checkResponse(text string, transport Transport) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty model response", apperror.ErrUpstreamService)
	}
	if transport == TransportBrace && !strings.Contains(text, "}") {
		return apperror.ErrTruncatedResponse
	}
	return nil
}

// classify maps upstream messages that announce a revoked key to
// apperror.ErrCredentialRevoked. This is the only place raw upstream text is
// inspected.
func classify(err error) error {
	if errors.Is(err, apperror.ErrCredentialRevoked) {
		return err
	}
	if apperror.IsRevokedMessage(err.Error()) {
		return fmt.Errorf("%w: %w", apperror.ErrCredentialRevoked, err)
	}
	return err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, apperror.ErrCredentialRevoked) &&
		!errors.Is(err, apperror.ErrMissingCredential) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
