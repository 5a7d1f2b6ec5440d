// Package chat contains the client side conversation concepts: messages,
// their delivery lifecycle and the commands a user can issue.
package chat

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// NewProvisionalID returns a locally generated id used until the server assigns one.
func NewProvisionalID() MessageID {
	return MessageID("local-" + uuid.NewString())
}

type DeliveryState string

const (
	Pending DeliveryState = "PENDING"
	Sent    DeliveryState = "SENT"
	Acked   DeliveryState = "ACKED"
	Failed  DeliveryState = "FAILED"
)

// Message is one line of a channel history. ProvisionalID is kept after the
// server id is known so retransmissions and echoes can still be matched.
type Message struct {
	ID            MessageID
	ProvisionalID MessageID
	Channel       string
	Sender        string
	Body          string
	Timestamp     time.Time
	State         DeliveryState
	Own           bool
}

func (m Message) IsAcked() bool { return m.State == Acked }
