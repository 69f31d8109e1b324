package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCause discriminates failure modes of the embedding and chat services.
type ErrorCause string

const (
	// CauseRateLimited maps HTTP 429.
	CauseRateLimited ErrorCause = "rate_limited"
	// CauseUnavailable maps HTTP 5xx.
	CauseUnavailable ErrorCause = "unavailable"
	// CauseTransient covers network-level failures.
	CauseTransient ErrorCause = "transient"
	// CauseInvalidRequest covers non-retryable 4xx responses.
	CauseInvalidRequest ErrorCause = "invalid_request"
)

// ServiceError is a typed failure from an external model service.
type ServiceError struct {
	Service    string // "embeddings" or "chat"
	Cause      ErrorCause
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s service %s (status %d): %s", e.Service, e.Cause, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s service %s: %s", e.Service, e.Cause, e.Message)
}

// Retryable reports whether the failure is worth retrying with backoff.
func (e *ServiceError) Retryable() bool {
	return e.Cause != CauseInvalidRequest
}

// classifyStatus maps an HTTP status to a ServiceError.
func classifyStatus(service string, status int, body string) *ServiceError {
	cause := CauseInvalidRequest
	switch {
	case status == http.StatusTooManyRequests:
		cause = CauseRateLimited
	case status >= 500:
		cause = CauseUnavailable
	}
	return &ServiceError{Service: service, Cause: cause, StatusCode: status, Message: body}
}

// transportError wraps a network-level failure as retryable.
func transportError(service string, err error) *ServiceError {
	return &ServiceError{Service: service, Cause: CauseTransient, Message: err.Error()}
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Cause == CauseRateLimited
}

// IsUnavailable reports whether err is a service-unavailable failure.
func IsUnavailable(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Cause == CauseUnavailable
}

// defaultMaxRetries bounds retry attempts for retryable failures.
const defaultMaxRetries = 3

// retryDelay implements exponential backoff: 2^attempt seconds.
func retryDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
