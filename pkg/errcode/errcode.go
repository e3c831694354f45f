package errcode

import (
	"fmt"
	"net/http"
)

// Error represents a business error
type Error struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	status int
	cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code, message and the HTTP status used when it
// reaches a REST caller
func New(code int, status int, msg string) *Error {
	return &Error{Code: code, Msg: msg, status: status}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code:   e.Code,
		Msg:    fmt.Sprintf("%s: %v", e.Msg, err),
		status: e.status,
		cause:  err,
	}
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors by code so wrapped copies compare equal to their sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Status returns the HTTP status for the error
func (e *Error) Status() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, http.StatusOK, "success")

	// Common errors (1xxx)
	ErrInvalidParam    = New(1001, http.StatusBadRequest, "invalid parameter")
	ErrInternalServer  = New(1002, http.StatusInternalServerError, "internal server error")
	ErrUnauthorized    = New(1003, http.StatusForbidden, "unauthorized")
	ErrNotFound        = New(1005, http.StatusNotFound, "not found")
	ErrTooManyRequests = New(1006, http.StatusTooManyRequests, "too many requests")

	// Auth errors (2xxx)
	ErrTokenInvalid = New(2001, http.StatusUnauthorized, "token invalid")
	ErrTokenMissing = New(2003, http.StatusUnauthorized, "token missing")

	// Conversation errors (3xxx)
	ErrConvNotFound       = New(3001, http.StatusNotFound, "conversation not found")
	ErrInvalidParties     = New(3002, http.StatusBadRequest, "invalid conversation parties")
	ErrConflictRetryable  = New(3003, http.StatusConflict, "conversation creation conflict, retry")
	ErrConversationClosed = New(3004, http.StatusConflict, "conversation is closed")

	// Message errors (4xxx)
	ErrEmptyMessage      = New(4002, http.StatusBadRequest, "message body is empty")
	ErrPayloadTooLarge   = New(4003, http.StatusRequestEntityTooLarge, "payload too large")
	ErrUnsupportedType   = New(4004, http.StatusUnsupportedMediaType, "unsupported attachment type")
	ErrInvalidAttachment = New(4005, http.StatusBadRequest, "invalid attachment reference")
	ErrStorageFailed     = New(4006, http.StatusBadGateway, "attachment storage unavailable")
	ErrSendFailed        = New(4007, http.StatusInternalServerError, "message send failed")
	ErrPullFailed        = New(4008, http.StatusInternalServerError, "message pull failed")

	// Gateway errors (5xxx)
	ErrConnOverLimit     = New(5001, http.StatusServiceUnavailable, "connection over max limit")
	ErrConnClosed        = New(5002, http.StatusServiceUnavailable, "connection closed")
	ErrInvalidProtocol   = New(5003, http.StatusBadRequest, "invalid protocol")
	ErrTransientDelivery = New(5004, http.StatusServiceUnavailable, "transient delivery failure")
)
