package projection

import (
	"cim/domain/chat"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversation_Acknowledge_RemapsInPlace(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// Given a pending message in general
	conv.AppendPending(chat.Message{ProvisionalID: "local-1", Channel: "general", Sender: "self", Body: "hi"})
	msg, ok := conv.Message("general", "local-1")
	req.True(ok)
	req.Equal(chat.Pending, msg.State)

	// When the server acknowledges it
	req.True(conv.MarkSent("general", "local-1"))
	acked, ok := conv.Acknowledge("general", "local-1", "srv-9", at)

	// Then the same entry now carries the server id
	req.True(ok)
	req.Equal(chat.MessageID("srv-9"), acked.ID)
	req.Equal(chat.Acked, acked.State)
	req.Equal(at, acked.Timestamp)
	view, _ := conv.Channel("general")
	req.Len(view.History, 1)
	req.Equal(chat.MessageID("local-1"), view.History[0].ProvisionalID)

	// And a second acknowledgement is a no-op
	_, ok = conv.Acknowledge("general", "local-1", "srv-9", at)
	req.False(ok)
}

func TestConversation_AppendRemote_DeduplicatesByServerID(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)

	req.True(conv.AppendRemote(chat.Message{ID: "srv-1", Channel: "general", Sender: "bob", Body: "yo"}))
	req.False(conv.AppendRemote(chat.Message{ID: "srv-1", Channel: "general", Sender: "bob", Body: "yo"}))

	view, _ := conv.Channel("general")
	req.Len(view.History, 1)
	req.Equal(chat.Acked, view.History[0].State)
}

func TestConversation_Acknowledge_DropsRemoteDuplicate(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)

	// Given our own message, and its echo stored as a remote message first
	conv.AppendPending(chat.Message{ProvisionalID: "local-1", Channel: "general", Body: "hi"})
	conv.AppendRemote(chat.Message{ID: "srv-1", Channel: "general", Body: "hi"})

	// When the acknowledgement arrives
	_, ok := conv.Acknowledge("general", "local-1", "srv-1", time.Time{})

	// Then only one entry remains
	req.True(ok)
	view, _ := conv.Channel("general")
	req.Len(view.History, 1)
	req.Equal(chat.MessageID("local-1"), view.History[0].ProvisionalID)
}

func TestConversation_MarkFailed_KeepsAcked(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)
	conv.AppendPending(chat.Message{ProvisionalID: "local-1", Channel: "general"})
	conv.AppendPending(chat.Message{ProvisionalID: "local-2", Channel: "general"})
	conv.Acknowledge("general", "local-1", "srv-1", time.Time{})

	conv.MarkFailed("general", "local-1")
	conv.MarkFailed("general", "local-2")

	first, _ := conv.Message("general", "srv-1")
	second, _ := conv.Message("general", "local-2")
	req.Equal(chat.Acked, first.State)
	req.Equal(chat.Failed, second.State)
}

func TestConversation_Members(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)
	conv.SetMembers("general", []string{"carol", "alice"})
	conv.SetMembers("random", []string{"alice"})

	conv.AddMember("general", "bob")
	conv.RenameMember("alice", "alicia")
	conv.RemoveMember("", "carol")

	general, _ := conv.Channel("general")
	random, _ := conv.Channel("random")
	req.Equal([]string{"alicia", "bob"}, general.Members)
	req.Equal([]string{"alicia"}, random.Members)
	req.Equal([]string{"general", "random"}, conv.Names())
}

func TestConversation_Snapshot_IsDetached(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)
	conv.AppendRemote(chat.Message{ID: "srv-1", Channel: "general", Body: "original"})

	snap := conv.Snapshot()
	snap[0].History[0].Body = "mutated"

	view, _ := conv.Channel("general")
	req.Equal("original", view.History[0].Body)
}

func TestConversation_ConcurrentReadersNeverSeeTornMessages(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(50)
	conv.EnsureChannel("general")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			conv.AppendRemote(chat.Message{
				ID:      chat.MessageID(fmt.Sprintf("srv-%d", i)),
				Channel: "general",
				Sender:  "bob",
				Body:    "line",
			})
		}
	}()

	for i := 0; i < 200; i++ {
		for _, view := range conv.Snapshot() {
			req.LessOrEqual(len(view.History), 50)
			for _, m := range view.History {
				req.Equal("bob", m.Sender)
				req.Equal("line", m.Body)
			}
		}
	}
	wg.Wait()
}

func TestConversation_RemoveChannelAndReset(t *testing.T) {
	req := require.New(t)
	conv := NewConversation(10)
	req.True(conv.EnsureChannel("general"))
	req.False(conv.EnsureChannel("general"))
	req.True(conv.RemoveChannel("general"))
	req.False(conv.HasChannel("general"))

	conv.EnsureChannel("random")
	conv.Reset()
	req.Empty(conv.Snapshot())
}
