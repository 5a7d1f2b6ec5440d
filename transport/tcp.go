package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const keepAlive = 30 * time.Second

type TCPDialer struct {
	log     *slog.Logger
	address string
	dialer  net.Dialer
}

func NewTCPDialer(log *slog.Logger, address string, timeout time.Duration) *TCPDialer {
	return &TCPDialer{
		log:     log,
		address: address,
		dialer:  net.Dialer{Timeout: timeout, KeepAlive: keepAlive},
	}
}

func (d *TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", d.address, err)
	}
	d.log.Debug("TCP connection established", "address", d.address, "local", conn.LocalAddr().String())
	return conn, nil
}
