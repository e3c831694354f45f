package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsSuccess checks if the error code indicates success
func (e *Error) IsSuccess() bool {
	return e.Code == 0
}

// Common error codes
const (
	// Success
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam    = 1001
	CodeInternalServer  = 1002
	CodeUnauthorized    = 1003
	CodeNotFound        = 1005
	CodeTooManyRequests = 1006

	// Auth errors (2xxx)
	CodeTokenInvalid = 2001
	CodeTokenMissing = 2003

	// Conversation errors (3xxx)
	CodeConvNotFound       = 3001
	CodeInvalidParties     = 3002
	CodeConflictRetryable  = 3003
	CodeConversationClosed = 3004

	// Message errors (4xxx)
	CodeEmptyMessage      = 4002
	CodePayloadTooLarge   = 4003
	CodeUnsupportedType   = 4004
	CodeInvalidAttachment = 4005
	CodeStorageFailed     = 4006
	CodeSendFailed        = 4007
	CodePullFailed        = 4008

	// WebSocket errors (5xxx)
	CodeConnOverLimit     = 5001
	CodeConnClosed        = 5002
	CodeInvalidProtocol   = 5003
	CodeTransientDelivery = 5004
)

// Predefined errors
var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrInternalServer  = NewError(CodeInternalServer, "internal server error")
	ErrUnauthorized    = NewError(CodeUnauthorized, "unauthorized")
	ErrTooManyRequests = NewError(CodeTooManyRequests, "too many requests")

	ErrTokenInvalid = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenMissing = NewError(CodeTokenMissing, "token missing")

	ErrConvNotFound       = NewError(CodeConvNotFound, "conversation not found")
	ErrInvalidParties     = NewError(CodeInvalidParties, "invalid conversation parties")
	ErrConflictRetryable  = NewError(CodeConflictRetryable, "conversation creation conflict, retry")
	ErrConversationClosed = NewError(CodeConversationClosed, "conversation is closed")

	ErrEmptyMessage      = NewError(CodeEmptyMessage, "message body is empty")
	ErrPayloadTooLarge   = NewError(CodePayloadTooLarge, "payload too large")
	ErrUnsupportedType   = NewError(CodeUnsupportedType, "unsupported attachment type")
	ErrInvalidAttachment = NewError(CodeInvalidAttachment, "invalid attachment reference")
	ErrStorageFailed     = NewError(CodeStorageFailed, "attachment storage unavailable")
)

// Stream errors
var (
	ErrStreamClosed     = errors.New("stream closed")
	ErrSubscribeTimeout = errors.New("subscribe not acknowledged in time")
)
