// Package projection builds the local conversation view from dispatched frames.
// Handles ordering, bounded retention and deduplication of channel histories.
// Does not emit events or interact with UI directly.
package projection

import (
	"cim/domain/chat"
	"slices"
)

// Timeline holds the bounded, ordered history of one channel.
// Oldest messages are evicted once retention is exceeded.
type Timeline struct {
	retention int
	Messages  []chat.Message
}

func NewTimeline(retention int) *Timeline {
	return &Timeline{retention: retention}
}

// Append adds m at the end and returns how many messages were evicted.
func (t *Timeline) Append(m chat.Message) int {
	t.Messages = append(t.Messages, m)
	if t.retention <= 0 || len(t.Messages) <= t.retention {
		return 0
	}
	evicted := len(t.Messages) - t.retention
	t.Messages = slices.Delete(t.Messages, 0, evicted)
	return evicted
}

// IndexOf finds a message by server id or provisional id, -1 when absent.
func (t *Timeline) IndexOf(id chat.MessageID) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(t.Messages, func(m chat.Message) bool {
		return m.ID == id || m.ProvisionalID == id
	})
}

func (t *Timeline) Clone() []chat.Message {
	return slices.Clone(t.Messages)
}
