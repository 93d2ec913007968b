package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

const validResponse = `{"accountType":"bank","institutionName":"DBS","accountName":"Savings","transactions":[{"date":"2024-01-05","description":"Salary","credit":"3000.00","debit":""}]}`

func TestExtract_Success(t *testing.T) {
	var got Request
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			got = req
			return validResponse, nil
		},
	}

	batch, err := NewExtractor(svc, Options{}).Extract(context.Background(), []byte("%PDF"), "application/pdf", "DD/MM/YYYY")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypeBank, batch.AccountType)
	assert.Equal(t, "Savings", batch.AccountName)
	require.Len(t, batch.Transactions, 1)

	assert.Equal(t, "application/pdf", got.MIMEType)
	assert.Equal(t, []byte("%PDF"), got.Data)
	assert.Contains(t, got.Prompt, "DD/MM/YYYY")
}

func TestExtract_RetriesTransientFailures(t *testing.T) {
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			if calls < 3 {
				return "", &apperror.UpstreamError{Service: "gemini", StatusCode: 503, Err: errors.New("unavailable")}
			}
			return validResponse, nil
		},
	}

	batch, err := NewExtractor(svc, Options{}).Extract(context.Background(), nil, "image/png", "")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, batch.Transactions, 1)
}

func TestExtract_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "", &apperror.UpstreamError{Service: "gemini", StatusCode: 500, Err: errors.New("boom")}
		},
	}

	_, err := NewExtractor(svc, Options{}).Extract(context.Background(), nil, "image/png", "")
	assert.ErrorIs(t, err, apperror.ErrUpstreamService)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestExtract_TruncatedResponseIsRetried(t *testing.T) {
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			if calls == 1 {
				return `{"transactions":[{"date":"2024-01-05"`, nil
			}
			return validResponse, nil
		},
	}

	_, err := NewExtractor(svc, Options{}).Extract(context.Background(), nil, "image/png", "")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExtract_TruncatedOnEveryAttempt(t *testing.T) {
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			return `{"transactions":[`, nil
		},
	}
	_, err := NewExtractor(svc, Options{MaxAttempts: 2}).Extract(context.Background(), nil, "image/png", "")
	assert.ErrorIs(t, err, apperror.ErrTruncatedResponse)
}

func TestExtract_LineTransportSkipsTruncationCheck(t *testing.T) {
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			assert.Contains(t, req.Prompt, "METADATA|")
			return "METADATA|ewallet|Grab|GrabPay\n2024-01-05,Top up,50.00,", nil
		},
	}
	batch, err := NewExtractor(svc, Options{Transport: TransportLine}).Extract(context.Background(), nil, "image/png", "")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypeEWallet, batch.AccountType)
	assert.Len(t, batch.Transactions, 1)
}

func TestExtract_RevokedCredentialIsNotRetried(t *testing.T) {
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "", &apperror.UpstreamError{Service: "gemini", StatusCode: 403, Err: errors.New("Your API key was reported as leaked. Please use another API key.")}
		},
	}

	_, err := NewExtractor(svc, Options{}).Extract(context.Background(), nil, "application/pdf", "")
	assert.ErrorIs(t, err, apperror.ErrCredentialRevoked)
	assert.Equal(t, 1, calls)

	var up *apperror.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "gemini", up.Service)
	assert.Equal(t, 403, up.StatusCode)
}

func TestExtract_ParseFailureIsTerminal(t *testing.T) {
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "I found nothing useful } here", nil
		},
	}

	_, err := NewExtractor(svc, Options{}).Extract(context.Background(), nil, "application/pdf", "")
	assert.ErrorIs(t, err, apperror.ErrNoStructuredData)
	assert.Equal(t, 1, calls)
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			cancel()
			return "", ctx.Err()
		},
	}

	_, err := NewExtractor(svc, Options{}).Extract(ctx, nil, "application/pdf", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExtract_UsesLimiter(t *testing.T) {
	calls := 0
	svc := &MockService{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			calls++
			return validResponse, nil
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)

	_, err := NewExtractor(svc, Options{Limiter: limiter}).Extract(context.Background(), nil, "application/pdf", "")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewServicesRequireKeys(t *testing.T) {
	_, err := NewGeminiService(context.Background(), GeminiConfig{})
	assert.ErrorIs(t, err, apperror.ErrMissingCredential)

	_, err = NewAnthropicService(AnthropicConfig{})
	assert.ErrorIs(t, err, apperror.ErrMissingCredential)

	assert.Equal(t, "image/jpeg", imageMediaType("image/jpg"))
}
