package runtime

import (
	"cim/domain/chat"
	"cim/protocol"
	"slices"
)

// Outbox is the FIFO of commands waiting for transmission. It never blocks:
// when a message push takes the depth beyond maxDepth the oldest queued
// message command is dropped. Non-message commands are never dropped.
// Callers hold the engine lock.
type Outbox struct {
	maxDepth int
	queue    []*PendingCommand
}

func NewOutbox(maxDepth int) *Outbox {
	return &Outbox{maxDepth: maxDepth}
}

// Push appends p and returns the command dropped to make room, if any.
// The dropped command may be p itself when nothing older can go.
func (o *Outbox) Push(p *PendingCommand) *PendingCommand {
	o.queue = append(o.queue, p)
	if !chat.IsMessage(p.Command) || len(o.queue) <= o.maxDepth {
		return nil
	}
	idx := slices.IndexFunc(o.queue, func(q *PendingCommand) bool {
		return chat.IsMessage(q.Command)
	})
	dropped := o.queue[idx]
	o.queue = slices.Delete(o.queue, idx, idx+1)
	return dropped
}

// PushFront puts commands at the head of the queue, keeping their order.
// Used for retransmissions and re-joins which were already admitted once.
func (o *Outbox) PushFront(p ...*PendingCommand) {
	if len(p) == 0 {
		return
	}
	o.queue = append(slices.Clone(p), o.queue...)
}

func (o *Outbox) Pop() (*PendingCommand, bool) {
	if len(o.queue) == 0 {
		return nil, false
	}
	p := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	return p, true
}

func (o *Outbox) HasJoin(channel string) bool {
	return slices.ContainsFunc(o.queue, func(p *PendingCommand) bool {
		return p.Command.Kind() == chat.JoinKind && p.Command.Target() == channel
	})
}

func (o *Outbox) Len() int { return len(o.queue) }

// Drain empties the queue and returns its content in order.
func (o *Outbox) Drain() []*PendingCommand {
	drained := o.queue
	o.queue = nil
	return drained
}

// frameFor builds the wire frame of a command. Sequence is left to the link writer.
func frameFor(cmd chat.Command, correlationID string) protocol.Frame {
	f := protocol.Frame{CorrelationID: correlationID}
	switch c := cmd.(type) {
	case chat.SendMessageCommand:
		f.Type = protocol.TypeMessage
		f.Payload = protocol.Payload{
			protocol.KeyChannel:       c.Channel,
			protocol.KeyBody:          c.Body,
			protocol.KeyProvisionalID: string(c.ProvisionalID),
		}
	case chat.JoinChannelCommand:
		f.Type = protocol.TypeChannelJoin
		f.Payload = protocol.Payload{protocol.KeyChannel: c.Channel}
	case chat.LeaveChannelCommand:
		f.Type = protocol.TypeChannelLeave
		f.Payload = protocol.Payload{protocol.KeyChannel: c.Channel}
	case chat.ChangeNickCommand:
		f.Type = protocol.TypeNick
		f.Payload = protocol.Payload{protocol.KeyUsername: c.Username}
	case chat.WhoCommand:
		f.Type = protocol.TypeWho
		if c.Channel != "" {
			f.Payload = protocol.Payload{protocol.KeyChannel: c.Channel}
		}
	}
	return f
}
