package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrNeedMoreData       = fmt.Errorf("need more data")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrAlreadyStarted     = fmt.Errorf("engine already started")
	ErrQueueOverflow      = fmt.Errorf("outbound queue overflow")
	ErrEmptyMessage       = fmt.Errorf("message body is empty")
	ErrMessageTooLong     = fmt.Errorf("message exceeds server length limit")
	ErrInvalidEncoding    = fmt.Errorf("text is not valid UTF-8")
	ErrUnencodable        = fmt.Errorf("frame cannot be encoded")
	ErrHeartbeatTimeout   = fmt.Errorf("heartbeat timeout")
	ErrReconnectExhausted = fmt.Errorf("reconnect attempts exhausted")
	ErrPeerClosed         = fmt.Errorf("connection closed by peer")
	ErrHandshakeTimeout   = fmt.Errorf("handshake timeout")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidChannel     = fmt.Errorf("invalid channel name")
	ErrInvalidToken       = fmt.Errorf("invalid resume token")
	ErrServerFatal        = fmt.Errorf("fatal server error")
)

// ProtocolError reports one malformed frame. Consumed is the number of bytes
// the corrupt unit occupies so the caller can skip it and stay in sync.
type ProtocolError struct {
	Offset   int
	Expected string
	Found    string
	Consumed int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at offset %d: expected %s, found %s", e.Offset, e.Expected, e.Found)
}

// StreamCorruptedError means frame boundaries are lost; the connection must be dropped.
type StreamCorruptedError struct {
	Offset int
	Reason string
}

func (e *StreamCorruptedError) Error() string {
	return fmt.Sprintf("stream corrupted at offset %d: %s", e.Offset, e.Reason)
}

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type AuthRejectedError struct {
	Reason string
	Code   string
}

func (e *AuthRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("authentication rejected: %s", e.Reason)
	}
	return fmt.Sprintf("authentication rejected (%s): %s", e.Code, e.Reason)
}

// IllegalStateError is a local validation failure. It never reaches the network.
type IllegalStateError struct {
	Op    string
	State string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

type DeliveryFailedError struct {
	Reason string
	Code   string
	Err    error
}

func (e *DeliveryFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("delivery failed: %s", e.Reason)
}

func (e *DeliveryFailedError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should lead to a reconnect attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var auth *AuthRejectedError
	if goerrors.As(err, &auth) {
		return false
	}
	return !goerrors.Is(err, ErrSessionClosed) && !goerrors.Is(err, ErrServerFatal)
}

func IsProtocolError(err error) bool {
	var p *ProtocolError
	return goerrors.As(err, &p)
}

func IsStreamCorrupted(err error) bool {
	var s *StreamCorruptedError
	return goerrors.As(err, &s)
}
