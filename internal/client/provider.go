package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/storyreel/api/internal/model"
)

// Error classes recorded on provider attempts. Retryability is decided
// per class: transient failures move the orchestrator to the next
// provider, permanent ones are surfaced without fallback.
const (
	ErrClassTimeout        = "timeout"
	ErrClassRateLimit      = "rate_limit"
	ErrClassMalformed      = "malformed_response"
	ErrClassPromptRejected = "prompt_rejected"
	ErrClassProvider       = "provider_error"
)

// ProviderError classifies a failed generation call
type ProviderError struct {
	Provider  string
	Class     string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with a class and the retryability that
// class implies.
func NewProviderError(provider, class string, err error) *ProviderError {
	retryable := true
	if class == ErrClassPromptRejected {
		retryable = false
	}
	return &ProviderError{Provider: provider, Class: class, Retryable: retryable, Err: err}
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrClassRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrClassTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrClassPromptRejected
	default:
		return ErrClassProvider
	}
}

// GenerateRequest is the uniform request every provider accepts
type GenerateRequest struct {
	Prompt          string
	DurationSeconds float64
	AspectRatio     string
	Kind            model.AssetKind
}

// GenerateResult is the uniform result. Providers that host their
// output return AssetURL; providers that stream bytes back return
// AssetBytes and leave AssetURL empty; the asset cache uploads those
// to fast storage.
type GenerateResult struct {
	AssetURL        string
	AssetBytes      []byte
	ContentType     string
	DurationSeconds float64
}

// ProviderClient is the contract every generative provider implements.
// New providers are added as new implementations, never as name
// branches inside orchestration logic.
type ProviderClient interface {
	// ID is the stable provider identifier recorded on attempts.
	ID() string
	// Supports reports whether the provider can produce the asset kind.
	Supports(kind model.AssetKind) bool
	// Generate produces one asset. Errors are *ProviderError.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	// IsConfigured reports whether credentials are present.
	IsConfigured() bool
}
