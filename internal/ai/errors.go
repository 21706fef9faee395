package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UpstreamError is a failed call to the model endpoint. Retryable is set
// only for 429 and 503; everything else is fatal for the turn.
type UpstreamError struct {
	StatusCode int
	Model      string
	Retryable  bool
	Message    string
	Cause      error
}

func (e *UpstreamError) Error() string {
	parts := []string{"gemini"}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

func statusError(model string, status int, body string) *UpstreamError {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &UpstreamError{
		StatusCode: status,
		Model:      model,
		Retryable:  status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable,
		Message:    msg,
	}
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable
}

var ErrUnknownTool = errors.New("unknown tool")
