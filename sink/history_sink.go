package sink

import (
	"cim/domain/event"
	"cim/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// HistorySink keeps a local, append only copy of everything the session
// displayed. Messages are also indexed for full-text search. The engine
// never reads it back.
type HistorySink struct {
	repository repositories.IHistoryRepository
	index      repositories.IHistoryIndex
	log        *slog.Logger
}

// NewHistorySink builds the sink. index may be nil when search is disabled.
func NewHistorySink(repository repositories.IHistoryRepository, index repositories.IHistoryIndex, log *slog.Logger) HistorySink {
	return HistorySink{repository: repository, index: index, log: log}
}

func (h HistorySink) Record(ctx context.Context, e event.DisplayEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record, ok := toHistoryRecord(e)
	if !ok {
		h.log.Debug(fmt.Sprintf("Not recorded event : %s", e.Name()))
		return nil
	}
	if err := h.repository.Store(record); err != nil {
		return fmt.Errorf("store %s: %w", e.Name(), err)
	}

	msg, ok := e.(event.NewMessage)
	if !ok || h.index == nil {
		return nil
	}
	return h.index.Index(repositories.SearchHit{
		MessageID: string(msg.MessageID),
		Channel:   msg.Channel,
		Sender:    msg.Sender,
		Body:      msg.Body,
		At:        msg.At,
	})
}

func toHistoryRecord(e event.DisplayEvent) (repositories.HistoryRecord, bool) {
	record := repositories.HistoryRecord{
		ID:      uuid.New(),
		Kind:    string(e.Name()),
		Channel: event.ChannelOf(e),
		At:      e.OccurredAt().UTC(),
	}
	switch evt := e.(type) {
	case event.NewMessage:
		record.Sender = evt.Sender
		record.Body = evt.Body
		record.MessageID = string(evt.MessageID)
	case event.PresenceChanged:
		record.Sender = evt.User
		record.Detail = string(evt.Status)
		if evt.OldUsername != "" {
			record.Detail = fmt.Sprintf("%s (was %s)", evt.Status, evt.OldUsername)
		}
	case event.ChannelJoined:
		record.Detail = strings.Join(evt.Members, ",")
	case event.ChannelLeft:
	case event.DeliveryFailed:
		record.MessageID = string(evt.ProvisionalID)
		record.Detail = fmt.Sprintf("%s: %s", evt.Kind, evt.Reason)
	case event.Notice:
		record.Detail = fmt.Sprintf("%s: %s", evt.Kind, evt.Text)
	case event.SessionError:
		record.Detail = evt.Reason
	case event.FatalError:
		record.Detail = evt.Reason
	case event.MemberList:
		record.Detail = strings.Join(evt.Members, ",")
	case event.NickChanged:
		record.Sender = evt.New
		record.Detail = fmt.Sprintf("was %s", evt.Old)
	case event.ConnectionStateChanged:
		record.Detail = fmt.Sprintf("%s -> %s", evt.From, evt.To)
	default:
		return repositories.HistoryRecord{}, false
	}
	return record, true
}
