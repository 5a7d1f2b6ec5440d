package runtime

import (
	"cim/auth"
	"cim/domain"
	"cim/domain/chat"
	"cim/errors"
	"cim/protocol"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Session is the logical, authenticated conversation with the server. It may
// span several physical connections and owns identity and channel membership.
// Callers hold the engine lock.
type Session struct {
	State       domain.SessionState
	ID          string
	Identity    string
	ResumeToken string
	// LengthLimit is the server message limit in characters, -1 when unknown.
	LengthLimit int
	memberships map[string]domain.Membership
}

// SessionView is a detached copy of the session.
type SessionView struct {
	State       domain.SessionState
	ID          string
	Identity    string
	LengthLimit int
	Memberships map[string]domain.Membership
}

func NewSession(username string) *Session {
	return &Session{
		State:       domain.Anonymous,
		Identity:    username,
		LengthLimit: -1,
		memberships: make(map[string]domain.Membership),
	}
}

// BeginAuth is called each time AUTH is sent. An authenticated session stays
// authenticated while it re-authenticates on a new connection.
func (s *Session) BeginAuth() {
	if s.State == domain.Anonymous {
		s.State = domain.Authenticating
	}
}

// AuthPayload returns the AUTH fields, including the resume token when it is still usable.
func (s *Session) AuthPayload(password, version string, now time.Time) protocol.Payload {
	p := protocol.Payload{
		protocol.KeyPassword: password,
		protocol.KeyVersion:  version,
	}
	// Without a username the server assigns one and flags it in the ACK.
	if s.Identity != "" {
		p[protocol.KeyUsername] = s.Identity
	}
	if s.ResumeToken == "" {
		return p
	}
	claims, err := auth.ParseResumeToken(s.ResumeToken)
	if err != nil || !claims.Usable(now) {
		s.ResumeToken = ""
		return p
	}
	p[protocol.KeyResumeToken] = s.ResumeToken
	p[protocol.KeySessionID] = s.ID
	return p
}

// Authenticated applies a successful AUTH ACK. It reports whether the server
// resumed the previous session, in which case memberships are still valid.
func (s *Session) Authenticated(ack protocol.Payload) bool {
	previous := s.ID
	id := ack.Get(protocol.KeySessionID)
	resumed := ack.Bool(protocol.KeyResumed) && previous != "" && id == previous

	s.State = domain.Authenticated
	s.ID = id
	if name := ack.Get(protocol.KeyUsername); name != "" {
		s.Identity = name
	}
	s.ResumeToken = ack.Get(protocol.KeyResumeToken)
	s.LengthLimit = ack.Int(protocol.KeyLengthLimit, -1)
	return resumed
}

func (s *Session) Terminate() {
	s.State = domain.Terminated
	s.ResumeToken = ""
}

func (s *Session) Membership(channel string) domain.Membership {
	if m, ok := s.memberships[channel]; ok {
		return m
	}
	return domain.Left
}

func (s *Session) SetMembership(channel string, m domain.Membership) {
	if m == domain.Left {
		delete(s.memberships, channel)
		return
	}
	s.memberships[channel] = m
}

// Channels returns the channels in the given membership state, sorted.
func (s *Session) Channels(m domain.Membership) []string {
	var names []string
	for name, state := range s.memberships {
		if state == m {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Check validates a command against the current state without touching the network.
func (s *Session) Check(cmd chat.Command) error {
	op := string(cmd.Kind())
	if s.State != domain.Authenticated {
		return &errors.IllegalStateError{Op: op, State: string(s.State)}
	}
	channel := cmd.Target()
	switch cmd.Kind() {
	case chat.SendMessageKind, chat.LeaveKind:
		if m := s.Membership(channel); !m.Active() {
			return &errors.IllegalStateError{Op: op, State: fmt.Sprintf("%s %s", channel, m)}
		}
	case chat.JoinKind:
		if m := s.Membership(channel); m.Active() {
			return &errors.IllegalStateError{Op: op, State: fmt.Sprintf("%s %s", channel, m)}
		}
	}
	return nil
}

func (s *Session) View() SessionView {
	return SessionView{
		State:       s.State,
		ID:          s.ID,
		Identity:    s.Identity,
		LengthLimit: s.LengthLimit,
		Memberships: maps.Clone(s.memberships),
	}
}
