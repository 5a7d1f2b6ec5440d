package projection

import (
	"cim/domain/chat"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

type channel struct {
	name    string
	members map[string]struct{}
	history *Timeline
}

// ChannelView is a detached copy of one channel.
type ChannelView struct {
	Name    string
	Members []string
	History []chat.Message
}

// Conversation is the thread safe store of channels, members and histories
// for the current session. Every mutation is one critical section and every
// read returns a deep copy.
type Conversation struct {
	mu        sync.RWMutex
	retention int
	channels  map[string]*channel
}

func NewConversation(retention int) *Conversation {
	return &Conversation{
		retention: retention,
		channels:  make(map[string]*channel),
	}
}

// EnsureChannel creates the channel if needed and reports whether it was created.
func (c *Conversation) EnsureChannel(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, created := c.ensure(name)
	return created
}

func (c *Conversation) ensure(name string) (*channel, bool) {
	if ch, ok := c.channels[name]; ok {
		return ch, false
	}
	ch := &channel{
		name:    name,
		members: make(map[string]struct{}),
		history: NewTimeline(c.retention),
	}
	c.channels[name] = ch
	return ch, true
}

func (c *Conversation) RemoveChannel(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[name]; !ok {
		return false
	}
	delete(c.channels, name)
	return true
}

func (c *Conversation) HasChannel(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[name]
	return ok
}

// AppendPending stores a locally composed message identified by its provisional id.
func (c *Conversation) AppendPending(m chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, _ := c.ensure(m.Channel)
	m.State = chat.Pending
	m.Own = true
	if m.ID == "" {
		m.ID = m.ProvisionalID
	}
	ch.history.Append(m)
}

func (c *Conversation) MarkSent(channelName string, provisional chat.MessageID) bool {
	return c.update(channelName, provisional, func(m *chat.Message) {
		if m.State == chat.Pending {
			m.State = chat.Sent
		}
	})
}

// MarkPending moves a SENT message back to PENDING, used when its command is requeued.
func (c *Conversation) MarkPending(channelName string, provisional chat.MessageID) bool {
	return c.update(channelName, provisional, func(m *chat.Message) {
		if m.State == chat.Sent {
			m.State = chat.Pending
		}
	})
}

func (c *Conversation) MarkFailed(channelName string, provisional chat.MessageID) bool {
	return c.update(channelName, provisional, func(m *chat.Message) {
		if m.State != chat.Acked {
			m.State = chat.Failed
		}
	})
}

// Acknowledge remaps the provisional id of a pending message to the server id
// in place. A remote copy already stored under serverID is dropped so the
// history never holds the same message twice.
func (c *Conversation) Acknowledge(channelName string, provisional, serverID chat.MessageID, at time.Time) (chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[channelName]
	if !ok {
		return chat.Message{}, false
	}
	idx := ch.history.IndexOf(provisional)
	if idx < 0 {
		return chat.Message{}, false
	}
	msg := &ch.history.Messages[idx]
	if msg.State == chat.Acked {
		return *msg, false
	}
	if serverID != "" {
		msg.ID = serverID
	}
	if !at.IsZero() {
		msg.Timestamp = at
	}
	msg.State = chat.Acked
	acked := *msg

	if serverID != "" {
		ch.history.Messages = slices.DeleteFunc(ch.history.Messages, func(m chat.Message) bool {
			return m.ID == serverID && m.ProvisionalID != provisional
		})
	}
	return acked, true
}

// AppendRemote stores a message received from the server. It returns false
// when a message with the same id is already in the channel.
func (c *Conversation) AppendRemote(m chat.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, _ := c.ensure(m.Channel)
	if ch.history.IndexOf(m.ID) >= 0 {
		return false
	}
	m.State = chat.Acked
	ch.history.Append(m)
	return true
}

// Message looks up a message by server or provisional id.
func (c *Conversation) Message(channelName string, id chat.MessageID) (chat.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[channelName]
	if !ok {
		return chat.Message{}, false
	}
	idx := ch.history.IndexOf(id)
	if idx < 0 {
		return chat.Message{}, false
	}
	return ch.history.Messages[idx], true
}

func (c *Conversation) update(channelName string, id chat.MessageID, fn func(*chat.Message)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[channelName]
	if !ok {
		return false
	}
	idx := ch.history.IndexOf(id)
	if idx < 0 {
		return false
	}
	fn(&ch.history.Messages[idx])
	return true
}

func (c *Conversation) SetMembers(channelName string, members []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, _ := c.ensure(channelName)
	ch.members = make(map[string]struct{}, len(members))
	for _, m := range members {
		ch.members[m] = struct{}{}
	}
}

// AddMember adds user to channelName, or to every channel when channelName is empty.
func (c *Conversation) AddMember(channelName, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.targets(channelName) {
		ch.members[user] = struct{}{}
	}
}

// RemoveMember removes user from channelName, or from every channel when channelName is empty.
func (c *Conversation) RemoveMember(channelName, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.targets(channelName) {
		delete(ch.members, user)
	}
}

// RenameMember replaces oldName by newName in every channel it belongs to.
func (c *Conversation) RenameMember(oldName, newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.channels {
		if _, ok := ch.members[oldName]; ok {
			delete(ch.members, oldName)
			ch.members[newName] = struct{}{}
		}
	}
}

func (c *Conversation) targets(channelName string) []*channel {
	if channelName == "" {
		return lo.Values(c.channels)
	}
	if ch, ok := c.channels[channelName]; ok {
		return []*channel{ch}
	}
	return nil
}

func (c *Conversation) Channel(name string) (ChannelView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[name]
	if !ok {
		return ChannelView{}, false
	}
	return ch.view(), true
}

// Snapshot returns every channel, sorted by name.
func (c *Conversation) Snapshot() []ChannelView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	views := lo.MapToSlice(c.channels, func(_ string, ch *channel) ChannelView {
		return ch.view()
	})
	slices.SortFunc(views, func(a, b ChannelView) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return views
}

func (c *Conversation) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := lo.Keys(c.channels)
	slices.Sort(names)
	return names
}

// Reset drops every channel, used when the session ends.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = make(map[string]*channel)
}

func (ch *channel) view() ChannelView {
	members := lo.Keys(ch.members)
	slices.Sort(members)
	return ChannelView{
		Name:    ch.name,
		Members: members,
		History: ch.history.Clone(),
	}
}
