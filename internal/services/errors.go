package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrUpstream      = errors.New("upstream api error")
	ErrParse         = errors.New("parse error")

	ErrDurationProbe     = fmt.Errorf("duration probe failed: %w", ErrExternalTool)
	ErrSegmentExtraction = fmt.Errorf("segment extraction failed: %w", ErrExternalTool)
	ErrPollTimeout       = fmt.Errorf("poll timed out: %w", ErrTimeout)
	ErrStreamTimeout     = fmt.Errorf("stream timed out: %w", ErrTimeout)
	ErrStreamSend        = errors.New("stream send failed")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// UpstreamError describes a non-2xx response from a third-party provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	parts := make([]string, 0, 3)
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("http %d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	head := strings.Join(parts, " ")
	if head == "" {
		head = "upstream"
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return head + ": " + msg
	}
	return head
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Classification is the public-facing rendition of an error.
type Classification struct {
	Status     int
	Message    string
	Suggestion string
}

// Classify maps an error onto the HTTP status, message, and remediation hint
// exposed by the API. Unknown errors become 500.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Status: http.StatusOK}
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		code := strings.ToLower(upstream.Code + " " + upstream.Message)
		switch {
		case strings.Contains(code, "insufficient_quota"), upstream.StatusCode == http.StatusPaymentRequired:
			return Classification{Status: http.StatusPaymentRequired, Message: msg, Suggestion: "check the provider account balance and billing settings"}
		case strings.Contains(code, "invalid_api_key"), upstream.StatusCode == http.StatusUnauthorized:
			return Classification{Status: http.StatusUnauthorized, Message: msg, Suggestion: "verify the provider API key"}
		case strings.Contains(code, "rate_limit"), upstream.StatusCode == http.StatusTooManyRequests:
			return Classification{Status: http.StatusTooManyRequests, Message: msg, Suggestion: "slow down and retry later"}
		}
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		return Classification{Status: http.StatusInternalServerError, Message: msg, Suggestion: "set the missing credential in the config file or environment"}
	case errors.Is(err, ErrValidation):
		return Classification{Status: http.StatusBadRequest, Message: msg}
	case errors.Is(err, ErrNotFound):
		return Classification{Status: http.StatusNotFound, Message: msg}
	case errors.Is(err, ErrTimeout):
		return Classification{Status: http.StatusGatewayTimeout, Message: msg, Suggestion: "retry the whole operation"}
	case strings.Contains(lower, "insufficient_quota"):
		return Classification{Status: http.StatusPaymentRequired, Message: msg, Suggestion: "check the provider account balance and billing settings"}
	case strings.Contains(lower, "api key"), strings.Contains(lower, "invalid_api_key"):
		return Classification{Status: http.StatusUnauthorized, Message: msg, Suggestion: "verify the provider API key"}
	case strings.Contains(lower, "rate_limit"):
		return Classification{Status: http.StatusTooManyRequests, Message: msg, Suggestion: "slow down and retry later"}
	default:
		return Classification{Status: http.StatusInternalServerError, Message: msg}
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
