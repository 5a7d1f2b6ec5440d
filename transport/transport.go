// Package transport provides the dialers the engine uses to open physical
// connections: plain TCP or binary WebSocket.
package transport

import (
	"cim/contract"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// New picks the dialer matching address: ws:// and wss:// URLs go through
// WebSocket, anything else is a TCP host:port.
func New(log *slog.Logger, address string, timeout time.Duration) (contract.Dialer, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		if _, err := url.Parse(address); err != nil {
			return nil, fmt.Errorf("invalid websocket url %q: %w", address, err)
		}
		return NewWebSocketDialer(log, address, timeout), nil
	}
	if !strings.Contains(address, ":") {
		return nil, fmt.Errorf("invalid server address %q: missing port", address)
	}
	return NewTCPDialer(log, address, timeout), nil
}
