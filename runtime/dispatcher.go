package runtime

import (
	"cim/domain"
	"cim/domain/chat"
	"cim/domain/event"
	"cim/errors"
	"cim/protocol"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dispatch routes one inbound frame. It never blocks on the network: PING
// answers go through reply, which hands the PONG to the link control lane.
// A non nil error ends the connection.
func (e *Engine) dispatch(f protocol.Frame, reply func(protocol.Frame) bool) error {
	switch f.Type {
	case protocol.TypePing:
		if !reply(pongFor(f)) {
			e.log.Warn("Control lane full, PONG dropped", "frame", f.String())
		}
		return nil
	case protocol.TypePong:
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	switch f.Type {
	case protocol.TypeMessage:
		e.onMessage(f)
	case protocol.TypeAck:
		e.onAck(f)
	case protocol.TypeError:
		return e.onError(f)
	case protocol.TypePresence:
		e.onPresence(f)
	case protocol.TypeChannelJoin:
		e.onChannelJoin(f)
	case protocol.TypeChannelLeave:
		e.onChannelLeave(f)
	case protocol.TypeNick:
		e.onNick(f)
	case protocol.TypeWho:
		e.onWho(f)
	default:
		e.log.Debug("Unexpected frame ignored", "frame", f.String())
	}
	return nil
}

func (e *Engine) onMessage(f protocol.Frame) {
	p := f.Payload
	channel := p.Get(protocol.KeyChannel)
	if channel == "" {
		e.log.Warn("MESSAGE without channel ignored", "frame", f.String())
		return
	}

	// Echo of our own message, matched by correlation id then by provisional id.
	if pending, ok := e.tracker.Get(f.CorrelationID); ok && chat.IsMessage(pending.Command) {
		e.tracker.Resolve(f.CorrelationID)
		e.acknowledgeMessage(pending, p)
		return
	}
	if pid := chat.MessageID(p.Get(protocol.KeyProvisionalID)); pid != "" {
		if pending, ok := e.tracker.ByProvisional(pid); ok {
			e.tracker.Resolve(pending.CorrelationID)
			e.acknowledgeMessage(pending, p)
			return
		}
		if _, ok := e.model.Message(channel, pid); ok {
			e.stats.IncrDuplicates()
			return
		}
	}

	id := chat.MessageID(p.Get(protocol.KeyMessageID))
	if id == "" {
		id = chat.MessageID(uuid.NewString())
	} else if _, ok := e.model.Message(channel, id); ok {
		e.stats.IncrDuplicates()
		return
	}
	if !e.session.Membership(channel).Active() {
		e.log.Debug("MESSAGE for a channel we are not in", "channel", channel)
		return
	}

	msg := chat.Message{
		ID:        id,
		Channel:   channel,
		Sender:    p.Get(protocol.KeySender),
		Body:      p.Get(protocol.KeyBody),
		Timestamp: e.timestamp(p),
		State:     chat.Acked,
		Own:       p.Get(protocol.KeySender) == e.session.Identity,
	}
	if e.model.AppendRemote(msg) {
		e.publish(e.newMessageEvent(msg))
	}
}

func (e *Engine) onAck(f protocol.Frame) {
	pending, ok := e.tracker.Resolve(f.CorrelationID)
	if !ok {
		e.log.Debug("ACK for an unknown command", "correlation_id", f.CorrelationID)
		return
	}
	p := f.Payload
	now := e.clock()

	switch cmd := pending.Command.(type) {
	case chat.SendMessageCommand:
		e.acknowledgeMessage(pending, p)
		return
	case chat.JoinChannelCommand:
		wasJoined := e.session.Membership(cmd.Channel) == domain.Joined
		e.session.SetMembership(cmd.Channel, domain.Joined)
		e.model.EnsureChannel(cmd.Channel)
		members := p.List(protocol.KeyMembers)
		if len(members) > 0 {
			e.model.SetMembers(cmd.Channel, members)
		}
		e.model.AddMember(cmd.Channel, e.session.Identity)
		if !wasJoined && !cmd.Rejoin {
			view, _ := e.model.Channel(cmd.Channel)
			e.publish(event.ChannelJoined{Channel: cmd.Channel, Members: view.Members, At: now})
		}
	case chat.LeaveChannelCommand:
		e.leftChannel(cmd.Channel, now)
	case chat.ChangeNickCommand:
		name := p.Get(protocol.KeyUsername)
		if name == "" {
			name = cmd.Username
		}
		e.renamed(name, now)
	case chat.WhoCommand:
		e.memberList(cmd.Channel, p.List(protocol.KeyMembers), now)
	}
	pending.Handle.resolve(Result{})
}

// acknowledgeMessage moves a message to ACKED and announces it. The message
// is displayed only now, with the server id.
func (e *Engine) acknowledgeMessage(pending *PendingCommand, p protocol.Payload) {
	cmd := pending.Command.(chat.SendMessageCommand)
	serverID := chat.MessageID(p.Get(protocol.KeyMessageID))
	msg, ok := e.model.Acknowledge(cmd.Channel, cmd.ProvisionalID, serverID, e.timestamp(p))
	if ok {
		e.publish(e.newMessageEvent(msg))
	}
	pending.Handle.resolve(Result{MessageID: serverID})
}

func (e *Engine) onError(f protocol.Frame) error {
	p := f.Payload
	reason, code := p.Get(protocol.KeyReason), p.Get(protocol.KeyCode)
	if pending, ok := e.tracker.Resolve(f.CorrelationID); ok {
		e.fail(pending, &errors.DeliveryFailedError{Reason: reason, Code: code})
		return nil
	}
	if p.Bool(protocol.KeyFatal) {
		return fmt.Errorf("%w: %s", errors.ErrServerFatal, reason)
	}
	e.publish(event.SessionError{Reason: reason, Code: code, At: e.clock()})
	return nil
}

func (e *Engine) onPresence(f protocol.Frame) {
	p := f.Payload
	now := e.clock()
	user, channel := p.Get(protocol.KeyUser), p.Get(protocol.KeyChannel)
	status := event.PresenceStatus(p.Get(protocol.KeyStatus))
	if user == "" {
		return
	}
	if channel != "" && !e.model.HasChannel(channel) {
		return
	}

	evt := event.PresenceChanged{Channel: channel, User: user, Status: status, At: now}
	switch status {
	case event.Online, event.Away:
		e.model.AddMember(channel, user)
	case event.Offline:
		e.model.RemoveMember(channel, user)
	case event.Renamed:
		evt.OldUsername = p.Get(protocol.KeyOldUsername)
		if evt.OldUsername == "" {
			return
		}
		e.model.RenameMember(evt.OldUsername, user)
	default:
		e.log.Debug("Unknown presence status", "status", status)
		return
	}
	e.publish(evt)
}

func (e *Engine) onChannelJoin(f protocol.Frame) {
	p := f.Payload
	now := e.clock()
	user, channel := p.Get(protocol.KeyUser), p.Get(protocol.KeyChannel)
	if channel == "" {
		return
	}
	if user == "" || user == e.session.Identity {
		if e.session.Membership(channel) == domain.Joined {
			return
		}
		e.session.SetMembership(channel, domain.Joined)
		e.model.EnsureChannel(channel)
		if members := p.List(protocol.KeyMembers); len(members) > 0 {
			e.model.SetMembers(channel, members)
		}
		e.model.AddMember(channel, e.session.Identity)
		view, _ := e.model.Channel(channel)
		e.publish(event.ChannelJoined{Channel: channel, Members: view.Members, At: now})
		return
	}
	if !e.model.HasChannel(channel) {
		return
	}
	e.model.AddMember(channel, user)
	e.publish(event.PresenceChanged{Channel: channel, User: user, Status: event.Online, At: now})
}

func (e *Engine) onChannelLeave(f protocol.Frame) {
	p := f.Payload
	now := e.clock()
	user, channel := p.Get(protocol.KeyUser), p.Get(protocol.KeyChannel)
	if channel == "" {
		return
	}
	if user == "" || user == e.session.Identity {
		e.leftChannel(channel, now)
		return
	}
	if !e.model.HasChannel(channel) {
		return
	}
	e.model.RemoveMember(channel, user)
	e.publish(event.PresenceChanged{Channel: channel, User: user, Status: event.Offline, At: now})
}

// onNick handles a rename decided by the server, outside any NICK command.
func (e *Engine) onNick(f protocol.Frame) {
	if name := f.Payload.Get(protocol.KeyUsername); name != "" {
		e.renamed(name, e.clock())
	}
}

func (e *Engine) onWho(f protocol.Frame) {
	e.memberList(f.Payload.Get(protocol.KeyChannel), f.Payload.List(protocol.KeyMembers), e.clock())
}

func (e *Engine) leftChannel(channel string, now time.Time) {
	if e.session.Membership(channel) == domain.Left && !e.model.HasChannel(channel) {
		return
	}
	e.session.SetMembership(channel, domain.Left)
	e.model.RemoveChannel(channel)
	e.publish(event.ChannelLeft{Channel: channel, At: now})
}

func (e *Engine) renamed(name string, now time.Time) {
	old := e.session.Identity
	if name == old {
		return
	}
	e.session.Identity = name
	e.model.RenameMember(old, name)
	e.publish(event.NickChanged{Old: old, New: name, At: now})
}

func (e *Engine) memberList(channel string, members []string, now time.Time) {
	if channel != "" && e.model.HasChannel(channel) {
		e.model.SetMembers(channel, members)
	}
	e.publish(event.MemberList{Channel: channel, Members: members, At: now})
}

// fail resolves a command that could not be confirmed and rolls back its local effects.
func (e *Engine) fail(pending *PendingCommand, err *errors.DeliveryFailedError) {
	evt := event.DeliveryFailed{
		Kind:    pending.Command.Kind(),
		Channel: pending.Command.Target(),
		Reason:  err.Reason,
		Code:    err.Code,
		At:      e.clock(),
	}
	switch cmd := pending.Command.(type) {
	case chat.SendMessageCommand:
		e.model.MarkFailed(cmd.Channel, cmd.ProvisionalID)
		evt.ProvisionalID = cmd.ProvisionalID
	case chat.JoinChannelCommand:
		if e.session.Membership(cmd.Channel) == domain.Joining {
			e.session.SetMembership(cmd.Channel, domain.Left)
			e.model.RemoveChannel(cmd.Channel)
		}
	case chat.LeaveChannelCommand:
		if e.session.Membership(cmd.Channel) == domain.Leaving {
			e.session.SetMembership(cmd.Channel, domain.Joined)
		}
	case chat.ChangeNickCommand:
		evt.Channel = ""
	}
	e.publish(evt)
	pending.Handle.resolve(Result{Err: err})
}

func (e *Engine) newMessageEvent(m chat.Message) event.NewMessage {
	body, _ := e.filter.Mask(m.Body)
	return event.NewMessage{
		MessageID:     m.ID,
		ProvisionalID: m.ProvisionalID,
		Channel:       m.Channel,
		Sender:        m.Sender,
		Body:          body,
		Own:           m.Own,
		At:            m.Timestamp,
	}
}

func (e *Engine) timestamp(p protocol.Payload) time.Time {
	if raw := p.Get(protocol.KeyTimestamp); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
	}
	return e.clock()
}
