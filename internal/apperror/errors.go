// Package apperror holds the error kinds shared by the extraction pipeline,
// the ledger adapters and the outer surfaces.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoStructuredData means a model response contained neither a JSON
	// object nor a METADATA line.
	ErrNoStructuredData = errors.New("no structured data in model response")

	// ErrUnrepairableStructuredData means the JSON payload could not be
	// parsed even after repair.
	ErrUnrepairableStructuredData = errors.New("structured data could not be repaired")

	// ErrCredentialRevoked means the upstream service reported the API key as
	// leaked or revoked. Retrying will not help.
	ErrCredentialRevoked = errors.New("api key revoked by upstream service")

	// ErrMissingCredential means no API key was configured.
	ErrMissingCredential = errors.New("api key not configured")

	// ErrUpstreamService covers any other failure of an external service.
	ErrUpstreamService = errors.New("upstream service failure")

	// ErrTruncatedResponse means the model output was cut off.
	ErrTruncatedResponse = fmt.Errorf("%w: truncated model response", ErrUpstreamService)

	// ErrAccountNotFound means the ledger has no account with the given title.
	ErrAccountNotFound = errors.New("account not found")
)

// UpstreamError wraps a failure reported by an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes every UpstreamError match ErrUpstreamService.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamService
}

// DocumentError tags an error with the document it belongs to.
type DocumentError struct {
	DocumentID string
	Name       string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s (%s): %v", e.Name, e.DocumentID, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// revokedPhrases are matched against upstream error text. The wording is not
// part of any published contract.
var revokedPhrases = []string{"leaked", "revoked", "has been disabled"}

// IsRevokedMessage reports whether an upstream error message says the key was
// revoked.
func IsRevokedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range revokedPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// UserMessage renders err for display to an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrCredentialRevoked):
		return "Your API key was reported as leaked and has been revoked. Generate a NEW key at aistudio.google.com and update your configuration."
	case errors.Is(err, ErrMissingCredential):
		return "No API key configured. Set GEMINI_API_KEY or ANTHROPIC_API_KEY."
	}
	var up *UpstreamError
	if errors.As(err, &up) && up.StatusCode == http.StatusTooManyRequests {
		return "Quota Exceeded (429). Wait a minute and try again."
	}
	if strings.Contains(err.Error(), "429") {
		return "Quota Exceeded (429). Wait a minute and try again."
	}
	return err.Error()
}
