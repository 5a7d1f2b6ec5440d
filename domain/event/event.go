package event

import (
	"cim/domain"
	"cim/domain/chat"
	"time"
)

type Type string

const (
	NewMessageType             Type = "NEW_MESSAGE"
	PresenceChangedType        Type = "PRESENCE_CHANGED"
	ChannelJoinedType          Type = "CHANNEL_JOINED"
	ChannelLeftType            Type = "CHANNEL_LEFT"
	DeliveryFailedType         Type = "DELIVERY_FAILED"
	ConnectionStateChangedType Type = "CONNECTION_STATE_CHANGED"
	FatalErrorType             Type = "FATAL_ERROR"
	NoticeType                 Type = "NOTICE"
	SessionErrorType           Type = "SESSION_ERROR"
	NickChangedType            Type = "NICK_CHANGED"
	MemberListType             Type = "MEMBER_LIST"
)

// DisplayEvent is what the engine publishes to its subscribers.
// Events are values: subscribers may keep them without copying.
type DisplayEvent interface {
	Name() Type
	OccurredAt() time.Time
}

// ChannelOf returns the channel an event belongs to, empty for session wide events.
func ChannelOf(e DisplayEvent) string {
	switch v := e.(type) {
	case NewMessage:
		return v.Channel
	case PresenceChanged:
		return v.Channel
	case ChannelJoined:
		return v.Channel
	case ChannelLeft:
		return v.Channel
	case DeliveryFailed:
		return v.Channel
	case MemberList:
		return v.Channel
	default:
		return ""
	}
}

type NewMessage struct {
	MessageID     chat.MessageID
	ProvisionalID chat.MessageID
	Channel       string
	Sender        string
	Body          string
	Own           bool
	At            time.Time
}

func (e NewMessage) Name() Type            { return NewMessageType }
func (e NewMessage) OccurredAt() time.Time { return e.At }

type PresenceStatus string

const (
	Online  PresenceStatus = "online"
	Offline PresenceStatus = "offline"
	Away    PresenceStatus = "away"
	Renamed PresenceStatus = "nick"
)

// PresenceChanged reports another user's status. Channel is empty when the
// change applies to every channel the user shares with us.
type PresenceChanged struct {
	Channel     string
	User        string
	OldUsername string
	Status      PresenceStatus
	At          time.Time
}

func (e PresenceChanged) Name() Type            { return PresenceChangedType }
func (e PresenceChanged) OccurredAt() time.Time { return e.At }

type ChannelJoined struct {
	Channel string
	Members []string
	At      time.Time
}

func (e ChannelJoined) Name() Type            { return ChannelJoinedType }
func (e ChannelJoined) OccurredAt() time.Time { return e.At }

type ChannelLeft struct {
	Channel string
	At      time.Time
}

func (e ChannelLeft) Name() Type            { return ChannelLeftType }
func (e ChannelLeft) OccurredAt() time.Time { return e.At }

type DeliveryFailed struct {
	Kind          chat.CommandKind
	Channel       string
	ProvisionalID chat.MessageID
	Reason        string
	Code          string
	At            time.Time
}

func (e DeliveryFailed) Name() Type            { return DeliveryFailedType }
func (e DeliveryFailed) OccurredAt() time.Time { return e.At }

type ConnectionStateChanged struct {
	From    domain.ConnectionState
	To      domain.ConnectionState
	Attempt int
	Err     error
	At      time.Time
}

func (e ConnectionStateChanged) Name() Type            { return ConnectionStateChangedType }
func (e ConnectionStateChanged) OccurredAt() time.Time { return e.At }

// FatalError is the last event of a session that cannot continue.
type FatalError struct {
	Reason string
	Err    error
	At     time.Time
}

func (e FatalError) Name() Type            { return FatalErrorType }
func (e FatalError) OccurredAt() time.Time { return e.At }

type NoticeKind string

const (
	MOTDNotice      NoticeKind = "MOTD"
	SystemNotice    NoticeKind = "SYSTEM"
	UsernameNotice  NoticeKind = "USERNAME"
	ReconnectNotice NoticeKind = "RECONNECT"
)

type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

func (e Notice) Name() Type            { return NoticeType }
func (e Notice) OccurredAt() time.Time { return e.At }

// SessionError is a non fatal server error not tied to any command.
type SessionError struct {
	Reason string
	Code   string
	At     time.Time
}

func (e SessionError) Name() Type            { return SessionErrorType }
func (e SessionError) OccurredAt() time.Time { return e.At }

type NickChanged struct {
	Old string
	New string
	At  time.Time
}

func (e NickChanged) Name() Type            { return NickChangedType }
func (e NickChanged) OccurredAt() time.Time { return e.At }

type MemberList struct {
	Channel string
	Members []string
	At      time.Time
}

func (e MemberList) Name() Type            { return MemberListType }
func (e MemberList) OccurredAt() time.Time { return e.At }
