package workers

import (
	"cim/contract"
	"cim/domain/event"
	"cim/observability"
	"context"
	"log/slog"
	"time"
)

// EventSource is an ordered stream of display events, ended by an error.
type EventSource interface {
	Next(ctx context.Context) (event.DisplayEvent, error)
}

// EventFanout forwards every display event to the history sinks.
//
// It provides best-effort delivery: each Record call is bounded by the sink
// timeout and a failing sink is only logged. The session never depends on it.
//
// The fan-out drains its source until the source ends, even when its context
// is canceled, so the last events of a session still reach the sinks.
type EventFanout struct {
	log         *slog.Logger
	source      EventSource
	sinks       []contract.HistorySink
	sinkTimeout time.Duration
	stats       *observability.Stats
}

func NewEventFanout(log *slog.Logger, source EventSource, sinkTimeout time.Duration,
	stats *observability.Stats, sinks ...contract.HistorySink) *EventFanout {
	return &EventFanout{
		log:         log,
		source:      source,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
		stats:       stats,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	drainCtx := context.WithoutCancel(ctx)
	for {
		evt, err := w.source.Next(drainCtx)
		if err != nil {
			w.log.Debug("Event source ended, stopping fan-out", "reason", err)
			return nil
		}
		w.Fanout(drainCtx, evt)
	}
}

// Fanout One sink after the other for each event, keeping per sink order
func (w *EventFanout) Fanout(ctx context.Context, evt event.DisplayEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		err := sink.Record(sinkCtx, evt)
		cancel()
		if err != nil {
			if w.stats != nil {
				w.stats.IncrSinkFailures()
			}
			w.log.Warn("History sink failed", "event", evt.Name(), "error", err)
		}
	}
}
