package transport

import (
	"cim/protocol"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var testLog = logs.GetLoggerFromLevel(slog.LevelDebug)

func ping() protocol.Frame {
	return protocol.Frame{Type: protocol.TypePing, Sequence: 1, CorrelationID: "p1"}
}

// exchange writes one frame on conn and decodes the answer.
func exchange(t *testing.T, conn net.Conn) protocol.Frame {
	t.Helper()
	raw, err := protocol.Encode(ping())
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, err := protocol.NewDecoder(conn).Next()
	require.NoError(t, err)
	return f
}

func TestTCPDialer_ExchangesFrames(t *testing.T) {
	req := require.New(t)

	// Given a TCP server echoing bytes
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(buf[:n])
	}()

	// When a frame goes through the dialed connection
	conn, err := NewTCPDialer(testLog, ln.Addr().String(), time.Second).Dial(context.Background())
	req.NoError(err)
	defer conn.Close()

	// Then it comes back intact
	if diff := cmp.Diff(ping(), exchange(t, conn)); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestTCPDialer_RefusedConnection(t *testing.T) {
	req := require.New(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	addr := ln.Addr().String()
	req.NoError(ln.Close())

	_, err = NewTCPDialer(testLog, addr, time.Second).Dial(context.Background())

	req.Error(err)
	req.Contains(err.Error(), addr)
}

func TestWebSocketDialer_ExchangesFrames(t *testing.T) {
	req := require.New(t)

	// Given a WebSocket server echoing binary messages
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
		if err != nil {
			return
		}
		defer c.CloseNow()
		typ, data, err := c.Read(r.Context())
		if err != nil {
			return
		}
		_ = c.Write(r.Context(), typ, data)
		_ = c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	// When a frame goes through the upgraded connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := NewWebSocketDialer(testLog, url, time.Second).Dial(ctx)
	req.NoError(err)
	defer conn.Close()

	// Then it comes back intact
	if diff := cmp.Diff(ping(), exchange(t, conn)); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_PicksDialerFromAddress(t *testing.T) {
	req := require.New(t)

	d, err := New(testLog, "ws://localhost:9000/chat", time.Second)
	req.NoError(err)
	req.IsType(&WebSocketDialer{}, d)

	d, err = New(testLog, "localhost:9000", time.Second)
	req.NoError(err)
	req.IsType(&TCPDialer{}, d)

	_, err = New(testLog, "localhost", time.Second)
	req.Error(err)
}
