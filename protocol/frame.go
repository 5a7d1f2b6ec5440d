// Package protocol holds the frame model and the binary wire codec spoken
// between the client and the messaging server.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type FrameType uint8

const (
	TypeAuth FrameType = iota + 1
	TypeMessage
	TypePresence
	TypeChannelJoin
	TypeChannelLeave
	TypeError
	TypePing
	TypePong
	TypeAck
	TypeNick
	TypeWho
)

var frameTypeNames = map[FrameType]string{
	TypeAuth:         "AUTH",
	TypeMessage:      "MESSAGE",
	TypePresence:     "PRESENCE",
	TypeChannelJoin:  "CHANNEL_JOIN",
	TypeChannelLeave: "CHANNEL_LEAVE",
	TypeError:        "ERROR",
	TypePing:         "PING",
	TypePong:         "PONG",
	TypeAck:          "ACK",
	TypeNick:         "NICK",
	TypeWho:          "WHO",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FrameType(%d)", uint8(t))
}

func (t FrameType) Valid() bool {
	_, ok := frameTypeNames[t]
	return ok
}

// Payload keys shared with the server.
const (
	KeyChannel       = "channel"
	KeySender        = "sender"
	KeyBody          = "body"
	KeyMessageID     = "message_id"
	KeyProvisionalID = "provisional_id"
	KeyTimestamp     = "timestamp"
	KeyUser          = "user"
	KeyOldUsername   = "old_username"
	KeyStatus        = "status"
	KeyMembers       = "members"
	KeyReason        = "reason"
	KeyCode          = "code"
	KeyFatal         = "fatal"
	KeyUsername      = "username"
	KeyPassword      = "password"
	KeyVersion       = "version"
	KeySessionID     = "session_id"
	KeyResumeToken   = "resume_token"
	KeyResumed       = "resumed"
	KeyMOTD          = "motd"
	KeyLengthLimit   = "length_limit"
	KeyFlags         = "flags"
)

// Payload carries the type specific fields of a frame. Values are strings on the wire.
type Payload map[string]string

func (p Payload) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

func (p Payload) Bool(key string) bool {
	b, err := strconv.ParseBool(p.Get(key))
	return err == nil && b
}

func (p Payload) Int(key string, fallback int) int {
	v, err := strconv.Atoi(p.Get(key))
	if err != nil {
		return fallback
	}
	return v
}

// List splits a comma separated value, dropping empty items.
func (p Payload) List(key string) []string {
	raw := p.Get(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// Frame is one atomic protocol unit. Sequence is unique and strictly
// increasing within one physical connection and restarts at 1 on reconnect.
type Frame struct {
	Type          FrameType
	Sequence      uint64
	CorrelationID string
	Payload       Payload
}

func (f Frame) String() string {
	return fmt.Sprintf("%s#%d corr=%q fields=%d", f.Type, f.Sequence, f.CorrelationID, len(f.Payload))
}
