package workers

import (
	"cim/errors"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Liveness is what the heartbeat needs from a connection.
type Liveness interface {
	SinceRead() time.Duration
	SinceWrite() time.Duration
	Ping() bool
}

// HeartbeatWorker keeps one connection alive. It sends a PING when nothing
// was written for a full interval and fails with errors.ErrHeartbeatTimeout
// when nothing was read for interval × multiplier.
type HeartbeatWorker struct {
	log        *slog.Logger
	link       Liveness
	interval   time.Duration
	multiplier int
}

func NewHeartbeatWorker(log *slog.Logger, link Liveness, interval time.Duration, multiplier int) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:        log,
		link:       link,
		interval:   interval,
		multiplier: multiplier,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	timeout := w.interval * time.Duration(w.multiplier)
	ticker := time.NewTicker(max(w.interval/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if silent := w.link.SinceRead(); silent > timeout {
				return fmt.Errorf("%w: nothing received for %s", errors.ErrHeartbeatTimeout, silent.Round(time.Millisecond))
			}
			if w.link.SinceWrite() >= w.interval && !w.link.Ping() {
				w.log.Debug("Control lane full, heartbeat skipped")
			}
		}
	}
}
