package runtime

import (
	"cim/domain/chat"
	"context"
	"sync"
)

// Result is the outcome of one command.
type Result struct {
	// MessageID is the server id of an acknowledged message.
	MessageID chat.MessageID
	Err       error
}

// Handle is the future returned for every accepted command. It is resolved
// exactly once: on ACK, on a correlated ERROR, on overflow, on reconnect
// exhaustion or when the session ends.
type Handle struct {
	kind   chat.CommandKind
	done   chan struct{}
	once   sync.Once
	result Result
}

func newHandle(kind chat.CommandKind) *Handle {
	return &Handle{kind: kind, done: make(chan struct{})}
}

func resolvedHandle(kind chat.CommandKind, err error) *Handle {
	h := newHandle(kind)
	h.resolve(Result{Err: err})
	return h
}

func (h *Handle) Kind() chat.CommandKind { return h.kind }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome and whether the handle is resolved.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the handle resolves or ctx ends. The returned error is
// the command error, or ctx.Err() when waiting was abandoned.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, h.result.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) resolve(r Result) bool {
	resolved := false
	h.once.Do(func() {
		h.result = r
		close(h.done)
		resolved = true
	})
	return resolved
}
