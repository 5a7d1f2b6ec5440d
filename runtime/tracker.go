package runtime

import (
	"cim/domain/chat"
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"
)

// PendingCommand is an outbound command from enqueue until it is resolved.
// While queued it belongs to the Outbox; once transmitted it is tracked by
// correlation id in the Tracker until its ACK or ERROR arrives.
type PendingCommand struct {
	Command    chat.Command
	Handle     *Handle
	EnqueuedAt time.Time
	RetryCount int
	// CorrelationID is assigned at transmit time and replaced on every retransmission.
	CorrelationID string
	SentAt        time.Time
	sendOrder     uint64
}

func newPendingCommand(cmd chat.Command, now time.Time) *PendingCommand {
	return &PendingCommand{
		Command:    cmd,
		Handle:     newHandle(cmd.Kind()),
		EnqueuedAt: now,
	}
}

func (p *PendingCommand) provisionalID() chat.MessageID {
	if msg, ok := p.Command.(chat.SendMessageCommand); ok {
		return msg.ProvisionalID
	}
	return ""
}

// Tracker holds transmitted commands awaiting confirmation.
// It performs a two-step lookup for echoes: provisional id to correlation id,
// then correlation id to command. Callers hold the engine lock.
type Tracker struct {
	inFlight      map[string]*PendingCommand
	byProvisional map[chat.MessageID]string
	sent          uint64
}

func NewTracker() *Tracker {
	return &Tracker{
		inFlight:      make(map[string]*PendingCommand),
		byProvisional: make(map[chat.MessageID]string),
	}
}

func (t *Tracker) Track(p *PendingCommand) {
	t.sent++
	p.sendOrder = t.sent
	t.inFlight[p.CorrelationID] = p
	if pid := p.provisionalID(); pid != "" {
		t.byProvisional[pid] = p.CorrelationID
	}
}

func (t *Tracker) Get(correlationID string) (*PendingCommand, bool) {
	if correlationID == "" {
		return nil, false
	}
	p, ok := t.inFlight[correlationID]
	return p, ok
}

func (t *Tracker) ByProvisional(id chat.MessageID) (*PendingCommand, bool) {
	corr, ok := t.byProvisional[id]
	if !ok {
		return nil, false
	}
	return t.Get(corr)
}

// Resolve stops tracking the command and returns it.
func (t *Tracker) Resolve(correlationID string) (*PendingCommand, bool) {
	p, ok := t.Get(correlationID)
	if !ok {
		return nil, false
	}
	delete(t.inFlight, correlationID)
	if pid := p.provisionalID(); pid != "" {
		delete(t.byProvisional, pid)
	}
	return p, true
}

func (t *Tracker) Len() int { return len(t.inFlight) }

// Drain removes every tracked command and returns them in transmission order.
func (t *Tracker) Drain() []*PendingCommand {
	pending := lo.Values(t.inFlight)
	slices.SortFunc(pending, func(a, b *PendingCommand) int {
		return cmp.Compare(a.sendOrder, b.sendOrder)
	})
	t.inFlight = make(map[string]*PendingCommand)
	t.byProvisional = make(map[chat.MessageID]string)
	return pending
}
