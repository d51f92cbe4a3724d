package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Sane defaults are listed below. For routes that need custom error messages,
// a request error can be generated and a handler expects the router to return
// the exact message inside the request error msg
//
// Error codes should be bubbled where the RequestError msg is expected to be
// returned to the user. If the user should see a generic error message but
// the error chain should include more detail for logging purposes, then a generic
// error should be added that provides context
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrInvalidKeyLen = &RequestError{Err: errors.New("invalid API key length"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrInvalidRequest = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrBadRequest          = &RequestError{Err: errors.New("bad request"), StatusCode: 400}
	ErrNotFound            = &RequestError{Err: errors.New("not found"), StatusCode: 404}
)

// StreamErrorCode is the taxonomy carried inside terminal error events and
// the internal observability records. CLIENT_DISCONNECTED is never written
// to the wire; a disconnected client gets nothing.
type StreamErrorCode string

const (
	CodeLLMTimeout         StreamErrorCode = "LLM_TIMEOUT"
	CodeLLMError           StreamErrorCode = "LLM_ERROR"
	CodeDuplicateInFlight  StreamErrorCode = "DUPLICATE_INFLIGHT"
	CodeInvalidRequest     StreamErrorCode = "INVALID_REQUEST"
	CodeInternalError      StreamErrorCode = "INTERNAL_ERROR"
	CodeClientDisconnected StreamErrorCode = "CLIENT_DISCONNECTED"
)

// StreamError pairs a taxonomy code with a client-safe message. Wrapped
// causes stay in the chain for logging and never reach the wire.
type StreamError struct {
	Code StreamErrorCode
	Msg  string
	Err  error
}

func (s *StreamError) Error() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s: %v", s.Code, s.Msg, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Msg)
}

func (s *StreamError) Unwrap() error {
	return s.Err
}

// NewStreamError wraps err with a taxonomy code and a message safe to send
// to the client.
func NewStreamError(code StreamErrorCode, msg string, err error) *StreamError {
	return &StreamError{Code: code, Msg: msg, Err: err}
}
