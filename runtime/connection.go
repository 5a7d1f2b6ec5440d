package runtime

import (
	"cim/errors"
	"cim/protocol"
	"cim/runtime/workers"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ConnectionManager owns the physical connection lifecycle: dial, handshake,
// serve, and reconnect with backoff. It knows nothing about message
// semantics; after each successful handshake the engine requeues what was
// left unacknowledged.
type ConnectionManager struct {
	engine  *Engine
	log     *slog.Logger
	backoff Backoff
}

func NewConnectionManager(e *Engine) *ConnectionManager {
	return &ConnectionManager{
		engine:  e,
		log:     e.log.With("component", "connection"),
		backoff: NewBackoff(e.opts.ReconnectBaseDelay, e.opts.ReconnectMaxDelay, e.opts.ReconnectJitter),
	}
}

// Run returns nil once the session is over: on cancellation, on a terminal
// error or when reconnect attempts are exhausted.
func (m *ConnectionManager) Run(ctx context.Context) error {
	attempt := 0
	for {
		l, err := m.connect(ctx, attempt)
		if err == nil {
			attempt = 0
			err = m.serve(ctx, l)
		}
		if ctx.Err() != nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			m.log.Error("Session cannot continue", "error", err)
			m.engine.terminate(err, err)
			return nil
		}

		attempt++
		if limit := m.engine.opts.ReconnectMaxAttempts; limit > 0 && attempt > limit {
			exhausted := fmt.Errorf("%w after %d attempts: %w", errors.ErrReconnectExhausted, limit, err)
			m.log.Error("Giving up reconnecting", "error", exhausted)
			m.engine.terminate(exhausted, errors.ErrReconnectExhausted)
			return nil
		}
		if !m.engine.linkLost(attempt, err) {
			return nil
		}

		delay := m.backoff.Delay(attempt)
		m.log.Info(fmt.Sprintf("Reconnecting in %s", delay.Round(time.Millisecond)), "attempt", attempt, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (m *ConnectionManager) connect(ctx context.Context, attempt int) (*link, error) {
	if !m.engine.beginConnect(attempt) {
		return nil, errors.ErrSessionClosed
	}
	conn, err := m.engine.dialer.Dial(ctx)
	if err != nil {
		return nil, &errors.TransportError{Op: "dial", Err: err}
	}
	l := newLink(conn, m.log, m.engine.stats, m.engine.opts.WriteTimeout)
	if err := m.handshake(ctx, l); err != nil {
		l.close()
		return nil, err
	}
	return l, nil
}

// handshake sends AUTH and waits for the matching ACK or ERROR. PINGs are
// answered meanwhile; any other frame is ignored.
func (m *ConnectionManager) handshake(ctx context.Context, l *link) error {
	stop := context.AfterFunc(ctx, l.close)
	defer stop()

	authFrame, ok := m.engine.beginHandshake()
	if !ok {
		return errors.ErrSessionClosed
	}
	if err := l.conn.SetReadDeadline(time.Now().Add(m.engine.opts.HandshakeTimeout)); err != nil {
		return &errors.TransportError{Op: "handshake", Err: err}
	}
	if err := l.write(authFrame); err != nil {
		return &errors.TransportError{Op: "write", Err: err}
	}

	for {
		f, err := l.read()
		if err != nil {
			if errors.IsProtocolError(err) {
				m.engine.stats.IncrProtocolErrors()
				m.log.Warn("Discarding malformed frame", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if goerrors.As(err, &netErr) && netErr.Timeout() {
				return errors.ErrHandshakeTimeout
			}
			return &errors.TransportError{Op: "handshake", Err: err}
		}

		switch {
		case f.Type == protocol.TypePing:
			if err := l.write(pongFor(f)); err != nil {
				return &errors.TransportError{Op: "write", Err: err}
			}
		case f.Type == protocol.TypeAck && f.CorrelationID == authFrame.CorrelationID:
			if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
				return &errors.TransportError{Op: "handshake", Err: err}
			}
			if !m.engine.handshakeDone(l, f.Payload) {
				return errors.ErrSessionClosed
			}
			return nil
		case f.Type == protocol.TypeError && (f.CorrelationID == authFrame.CorrelationID || f.CorrelationID == ""):
			return &errors.AuthRejectedError{
				Reason: f.Payload.Get(protocol.KeyReason),
				Code:   f.Payload.Get(protocol.KeyCode),
			}
		default:
			m.log.Debug("Frame ignored during handshake", "frame", f.String())
		}
	}
}

// serve runs the reader, the writer and the heartbeat of one link until the
// first of them fails, then closes the link and returns that failure.
func (m *ConnectionManager) serve(ctx context.Context, l *link) error {
	linkCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	heartbeat := workers.NewHeartbeatWorker(m.log, l,
		m.engine.opts.HeartbeatInterval, m.engine.opts.HeartbeatTimeoutMultiplier)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		cancel(m.readLoop(l))
	}()
	go func() {
		defer wg.Done()
		cancel(m.writeLoop(linkCtx, l))
	}()
	go func() {
		defer wg.Done()
		if err := heartbeat.Run(linkCtx); err != nil {
			cancel(err)
		}
	}()

	<-linkCtx.Done()
	l.close()
	wg.Wait()
	return context.Cause(linkCtx)
}

// readLoop decodes and dispatches frames strictly in arrival order.
func (m *ConnectionManager) readLoop(l *link) error {
	for {
		f, err := l.read()
		if err != nil {
			switch {
			case errors.IsProtocolError(err):
				m.engine.stats.IncrProtocolErrors()
				m.log.Warn("Discarding malformed frame", "error", err)
				continue
			case goerrors.Is(err, io.EOF):
				return errors.ErrPeerClosed
			case errors.IsStreamCorrupted(err):
				return err
			default:
				return &errors.TransportError{Op: "read", Err: err}
			}
		}
		if err := m.engine.dispatch(f, l.sendControl); err != nil {
			return err
		}
	}
}

// writeLoop owns every write of the link once connected. Control frames
// always go before queued commands.
func (m *ConnectionManager) writeLoop(ctx context.Context, l *link) error {
	write := func(f protocol.Frame) error {
		err := l.write(f)
		switch {
		case err == nil:
			return nil
		case goerrors.Is(err, errors.ErrUnencodable):
			// Nothing reached the socket; only this frame is lost.
			m.log.Warn("Frame dropped", "type", f.Type.String(), "error", err)
			if f.CorrelationID != "" {
				m.engine.rejectOutbound(f.CorrelationID, err)
			}
			return nil
		default:
			return &errors.TransportError{Op: "write", Err: err}
		}
	}
	for {
		select {
		case f := <-l.control:
			if err := write(f); err != nil {
				return err
			}
			continue
		default:
		}

		if f, ok := m.engine.nextOutbound(l); ok {
			if err := write(f); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.control:
			if err := write(f); err != nil {
				return err
			}
		case <-m.engine.wake:
		}
	}
}
