package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"docqa/internal/indexer"
	"docqa/internal/llm"
	"docqa/internal/vectorstore"
)

// ValidationError rejects a request before any backend is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// User-facing messages are fixed strings so backend details never
// leak into responses.
const (
	MsgEmbeddingDown = "The question could not be processed right now. Please try again shortly."
	MsgChatDown      = "The answer could not be generated right now. Please try again shortly."
	MsgStoreDown     = "Search is temporarily unavailable. Please try again shortly."
	MsgRateLimited   = "The service is handling too many requests. Please try again shortly."
	MsgTimeout       = "The request took too long to complete. Please try again."
	MsgReindexBusy   = "An index rebuild is already in progress."
)

// UserError is what a failed request surfaces to the caller: an HTTP
// status and a stable message, with the real cause kept for logs.
type UserError struct {
	Status  int
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

// Translate maps internal failures onto user-facing errors. Validation
// errors pass through with their own message since they describe the
// caller's input, not backend state.
func Translate(err error) *UserError {
	if err == nil {
		return nil
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return &UserError{Status: http.StatusBadRequest, Message: verr.Error(), Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &UserError{Status: http.StatusGatewayTimeout, Message: MsgTimeout, Err: err}
	}

	if errors.Is(err, indexer.ErrReindexRunning) {
		return &UserError{Status: http.StatusConflict, Message: MsgReindexBusy, Err: err}
	}

	var serr *llm.ServiceError
	if errors.As(err, &serr) {
		if llm.IsRateLimited(err) {
			return &UserError{Status: http.StatusTooManyRequests, Message: MsgRateLimited, Err: err}
		}
		msg := MsgChatDown
		if serr.Service == "embeddings" {
			msg = MsgEmbeddingDown
		}
		return &UserError{Status: http.StatusBadGateway, Message: msg, Err: err}
	}

	if errors.Is(err, vectorstore.ErrUnavailable) {
		return &UserError{Status: http.StatusServiceUnavailable, Message: MsgStoreDown, Err: err}
	}

	return &UserError{Status: http.StatusInternalServerError, Message: "Internal server error.", Err: err}
}
