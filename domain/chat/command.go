package chat

import (
	"time"
)

type CommandKind string

const (
	SendMessageKind CommandKind = "SEND_MESSAGE"
	JoinKind        CommandKind = "JOIN"
	LeaveKind       CommandKind = "LEAVE"
	NickKind        CommandKind = "NICK"
	WhoKind         CommandKind = "WHO"
)

type Command interface {
	Kind() CommandKind
	Target() string
}

type SendMessageCommand struct {
	Channel       string
	Body          string
	ProvisionalID MessageID
	CreatedAt     time.Time
}

func (c SendMessageCommand) Kind() CommandKind { return SendMessageKind }
func (c SendMessageCommand) Target() string    { return c.Channel }

type JoinChannelCommand struct {
	Channel string
	// Rejoin marks joins issued by the engine after a reconnect without resumption.
	Rejoin bool
}

func (c JoinChannelCommand) Kind() CommandKind { return JoinKind }
func (c JoinChannelCommand) Target() string    { return c.Channel }

type LeaveChannelCommand struct {
	Channel string
}

func (c LeaveChannelCommand) Kind() CommandKind { return LeaveKind }
func (c LeaveChannelCommand) Target() string    { return c.Channel }

type ChangeNickCommand struct {
	Username string
}

func (c ChangeNickCommand) Kind() CommandKind { return NickKind }
func (c ChangeNickCommand) Target() string    { return c.Username }

type WhoCommand struct {
	Channel string
}

func (c WhoCommand) Kind() CommandKind { return WhoKind }
func (c WhoCommand) Target() string    { return c.Channel }

func IsMessage(c Command) bool {
	return c.Kind() == SendMessageKind
}

// QuitKind labels the handle returned by Quit. Quit never goes through the queue.
const QuitKind CommandKind = "QUIT"
