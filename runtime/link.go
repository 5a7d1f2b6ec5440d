package runtime

import (
	"cim/errors"
	"cim/observability"
	"cim/protocol"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const controlLaneSize = 16

// link is one physical connection. Only one goroutine writes at a time: the
// handshake first, then the writer loop, so sequence numbers are strictly
// increasing and restart at 1 with every new link.
type link struct {
	conn         net.Conn
	dec          *protocol.Decoder
	log          *slog.Logger
	stats        *observability.Stats
	writeTimeout time.Duration
	seq          uint64
	control      chan protocol.Frame
	lastRead     atomic.Int64
	lastWrite    atomic.Int64
	closeOnce    sync.Once
}

func newLink(conn net.Conn, log *slog.Logger, stats *observability.Stats, writeTimeout time.Duration) *link {
	l := &link{
		conn:         conn,
		dec:          protocol.NewDecoder(conn),
		log:          log,
		stats:        stats,
		writeTimeout: writeTimeout,
		control:      make(chan protocol.Frame, controlLaneSize),
	}
	now := time.Now().UnixNano()
	l.lastRead.Store(now)
	l.lastWrite.Store(now)
	return l
}

// write stamps the next sequence number on f and sends it.
func (l *link) write(f protocol.Frame) error {
	f.Sequence = l.seq + 1
	raw, err := protocol.Encode(f)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrUnencodable, err)
	}
	l.seq = f.Sequence
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return err
	}
	if _, err := l.conn.Write(raw); err != nil {
		return err
	}
	l.lastWrite.Store(time.Now().UnixNano())
	l.stats.IncrFramesOut(len(raw))
	l.log.Debug("Frame sent", "frame", f.String())
	return nil
}

// read returns the next frame. Malformed units still count as traffic.
func (l *link) read() (protocol.Frame, error) {
	before := l.dec.Offset()
	f, err := l.dec.Next()
	if consumed := l.dec.Offset() - before; consumed > 0 {
		l.lastRead.Store(time.Now().UnixNano())
		if err == nil {
			l.stats.IncrFramesIn(int(consumed))
		}
	}
	return f, err
}

// sendControl queues a heartbeat frame ahead of user traffic without blocking.
func (l *link) sendControl(f protocol.Frame) bool {
	select {
	case l.control <- f:
		return true
	default:
		return false
	}
}

func (l *link) SinceRead() time.Duration {
	return time.Since(time.Unix(0, l.lastRead.Load()))
}

func (l *link) SinceWrite() time.Duration {
	return time.Since(time.Unix(0, l.lastWrite.Load()))
}

func (l *link) Ping() bool {
	return l.sendControl(protocol.Frame{Type: protocol.TypePing})
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		if err := l.conn.Close(); err != nil {
			l.log.Debug("Closing connection", "error", err)
		}
	})
}

// pongFor answers a PING, echoing its correlation id or, when absent, its sequence.
func pongFor(ping protocol.Frame) protocol.Frame {
	corr := ping.CorrelationID
	if corr == "" {
		corr = strconv.FormatUint(ping.Sequence, 10)
	}
	return protocol.Frame{Type: protocol.TypePong, CorrelationID: corr}
}
