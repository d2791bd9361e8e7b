package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusTooManyRequests, ErrClassRateLimit},
		{http.StatusGatewayTimeout, ErrClassTimeout},
		{http.StatusRequestTimeout, ErrClassTimeout},
		{http.StatusBadRequest, ErrClassPromptRejected},
		{http.StatusUnprocessableEntity, ErrClassPromptRejected},
		{http.StatusInternalServerError, ErrClassProvider},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, got)
		}
	}
}

func TestProviderErrorRetryability(t *testing.T) {
	rejected := NewProviderError("p", ErrClassPromptRejected, errors.New("unsafe"))
	if rejected.Retryable {
		t.Error("prompt rejection must not be retryable")
	}

	for _, class := range []string{ErrClassTimeout, ErrClassRateLimit, ErrClassMalformed, ErrClassProvider} {
		if !NewProviderError("p", class, errors.New("x")).Retryable {
			t.Errorf("class %s should be retryable", class)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewProviderError("p", ErrClassTimeout, inner)
	if !errors.Is(err, inner) {
		t.Error("ProviderError should unwrap to its cause")
	}
}

func TestEstimateSpeechSeconds(t *testing.T) {
	if got := EstimateSpeechSeconds("one two three four five", 2.5); got != 2 {
		t.Errorf("expected 2s for five words at 2.5 w/s, got %v", got)
	}
	if got := EstimateSpeechSeconds("", 2.5); got != 0 {
		t.Errorf("expected 0 for empty text, got %v", got)
	}
	if got := EstimateSpeechSeconds("words here", 0); got != 0 {
		t.Errorf("expected 0 for zero rate, got %v", got)
	}
}
