package runtime

import (
	"cim/errors"
	"fmt"
	"time"
)

// Options is the engine level configuration. Zero values take defaults in Validate.
type Options struct {
	// Username may be empty, the server then assigns one.
	Username string
	Password string
	// ClientVersion is sent in AUTH.
	ClientVersion string

	HeartbeatInterval          time.Duration
	HeartbeatTimeoutMultiplier int
	ReconnectBaseDelay         time.Duration
	ReconnectMaxDelay          time.Duration
	// ReconnectMaxAttempts of 0 means unlimited.
	ReconnectMaxAttempts int
	// ReconnectJitter is the fraction [0,1) of a delay that may be removed at random.
	ReconnectJitter         float64
	OutboundQueueMaxDepth   int
	ChannelHistoryRetention int
	HandshakeTimeout        time.Duration
	WriteTimeout            time.Duration
	SinkTimeout             time.Duration
}

const (
	defaultHeartbeatInterval   = 15 * time.Second
	defaultHeartbeatMultiplier = 3
	defaultReconnectBaseDelay  = 500 * time.Millisecond
	defaultReconnectMaxDelay   = 30 * time.Second
	defaultOutboundQueueDepth  = 256
	defaultHistoryRetention    = 500
	defaultHandshakeTimeout    = 10 * time.Second
	defaultWriteTimeout        = 5 * time.Second
	defaultSinkTimeout         = 2 * time.Second
	defaultClientVersion       = "cim/1"
)

// Validate applies defaults and rejects inconsistent values.
func (o *Options) Validate() error {
	if o.ClientVersion == "" {
		o.ClientVersion = defaultClientVersion
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}
	if o.HeartbeatTimeoutMultiplier <= 0 {
		o.HeartbeatTimeoutMultiplier = defaultHeartbeatMultiplier
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if o.ReconnectMaxDelay < o.ReconnectBaseDelay {
		return fmt.Errorf("%w: reconnect max delay %s below base delay %s",
			errors.ErrInvalidConfig, o.ReconnectMaxDelay, o.ReconnectBaseDelay)
	}
	if o.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("%w: negative reconnect max attempts", errors.ErrInvalidConfig)
	}
	if o.ReconnectJitter < 0 || o.ReconnectJitter >= 1 {
		return fmt.Errorf("%w: reconnect jitter %v outside [0,1)", errors.ErrInvalidConfig, o.ReconnectJitter)
	}
	if o.OutboundQueueMaxDepth <= 0 {
		o.OutboundQueueMaxDepth = defaultOutboundQueueDepth
	}
	if o.ChannelHistoryRetention <= 0 {
		o.ChannelHistoryRetention = defaultHistoryRetention
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = defaultSinkTimeout
	}
	return nil
}
