package transport

import (
	"cim/protocol"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/coder/websocket"
)

// Subprotocol is announced during the WebSocket upgrade.
const Subprotocol = "cim.v1"

// WebSocketDialer carries the binary frame stream over WebSocket messages.
// Frame boundaries do not have to match message boundaries: the decoder
// reassembles the stream.
type WebSocketDialer struct {
	log     *slog.Logger
	url     string
	timeout time.Duration
}

func NewWebSocketDialer(log *slog.Logger, url string, timeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{log: log, url: url, timeout: timeout}
}

// Dial performs the upgrade. The returned connection lives until it is
// closed or ctx ends.
func (d *WebSocketDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	c, _, err := websocket.Dial(dialCtx, d.url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", d.url, err)
	}
	c.SetReadLimit(protocol.HeaderSize + protocol.MaxFrameSize)
	d.log.Debug("WebSocket connection established", "url", d.url, "subprotocol", c.Subprotocol())
	return websocket.NetConn(ctx, c, websocket.MessageBinary), nil
}
