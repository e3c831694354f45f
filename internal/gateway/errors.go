package gateway

import "errors"

var (
	// ErrConnClosed is returned for writes on a session that has shut down
	ErrConnClosed = errors.New("gateway: session closed")
	// ErrWriteChannelFull marks a subscriber that cannot keep up with pushes
	ErrWriteChannelFull = errors.New("gateway: outbound queue full")
	// ErrInvalidProtocol rejects malformed frames and unknown request ids
	ErrInvalidProtocol = errors.New("gateway: invalid request frame")
	ErrSessionPanic    = errors.New("gateway: session read loop panicked")
)
