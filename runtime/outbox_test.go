package runtime

import (
	"cim/domain/chat"
	"cim/protocol"
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func message(body string) *PendingCommand {
	return newPendingCommand(chat.SendMessageCommand{
		Channel:       "general",
		Body:          body,
		ProvisionalID: chat.NewProvisionalID(),
	}, time.Now())
}

func bodies(queue []*PendingCommand) []string {
	return lo.Map(queue, func(p *PendingCommand, _ int) string {
		if msg, ok := p.Command.(chat.SendMessageCommand); ok {
			return msg.Body
		}
		return string(p.Command.Kind())
	})
}

func TestOutbox_IsFIFO(t *testing.T) {
	req := require.New(t)
	o := NewOutbox(10)
	for _, body := range []string{"a", "b", "c"} {
		req.Nil(o.Push(message(body)))
	}

	var got []string
	for {
		p, ok := o.Pop()
		if !ok {
			break
		}
		got = append(got, p.Command.(chat.SendMessageCommand).Body)
	}
	req.Equal([]string{"a", "b", "c"}, got)
	req.Zero(o.Len())
}

func TestOutbox_OverflowDropsOldestMessageOnly(t *testing.T) {
	req := require.New(t)
	o := NewOutbox(2)

	// Given a join at the head of a full queue
	req.Nil(o.Push(newPendingCommand(chat.JoinChannelCommand{Channel: "general"}, time.Now())))
	req.Nil(o.Push(message("a")))

	// When a message push exceeds the depth
	dropped := o.Push(message("b"))

	// Then the oldest message goes, never the join
	req.NotNil(dropped)
	req.Equal("a", dropped.Command.(chat.SendMessageCommand).Body)
	req.Equal([]string{"JOIN", "b"}, bodies(o.Drain()))
}

func TestOutbox_ControlCommandsMayExceedDepth(t *testing.T) {
	req := require.New(t)
	o := NewOutbox(1)
	req.Nil(o.Push(newPendingCommand(chat.WhoCommand{}, time.Now())))
	req.Nil(o.Push(newPendingCommand(chat.JoinChannelCommand{Channel: "a"}, time.Now())))
	req.Equal(2, o.Len())

	// Only a message can be dropped, here the incoming one itself
	incoming := message("late")
	req.Same(incoming, o.Push(incoming))
	req.Equal(2, o.Len())
	req.True(o.HasJoin("a"))
	req.False(o.HasJoin("b"))
}

func TestOutbox_PushFrontKeepsOrder(t *testing.T) {
	req := require.New(t)
	o := NewOutbox(10)
	o.Push(message("new"))

	o.PushFront(message("retry-1"), message("retry-2"))

	req.Equal([]string{"retry-1", "retry-2", "new"}, bodies(o.Drain()))
}

func TestFrameFor(t *testing.T) {
	req := require.New(t)

	f := frameFor(chat.SendMessageCommand{Channel: "general", Body: "hi", ProvisionalID: "local-1"}, "c1")
	req.Equal(protocol.TypeMessage, f.Type)
	req.Equal("c1", f.CorrelationID)
	req.Equal("local-1", f.Payload.Get(protocol.KeyProvisionalID))

	req.Equal(protocol.TypeChannelLeave, frameFor(chat.LeaveChannelCommand{Channel: "general"}, "c2").Type)
	req.Equal("neo", frameFor(chat.ChangeNickCommand{Username: "neo"}, "c3").Payload.Get(protocol.KeyUsername))
	req.Empty(frameFor(chat.WhoCommand{}, "c4").Payload)
}

func TestTracker_MatchesByCorrelationAndProvisionalID(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()
	p := message("hi")
	p.CorrelationID = "c1"
	tr.Track(p)

	got, ok := tr.ByProvisional(p.Command.(chat.SendMessageCommand).ProvisionalID)
	req.True(ok)
	req.Same(p, got)
	_, ok = tr.Get("")
	req.False(ok)

	resolved, ok := tr.Resolve("c1")
	req.True(ok)
	req.Same(p, resolved)
	_, ok = tr.ByProvisional(p.Command.(chat.SendMessageCommand).ProvisionalID)
	req.False(ok)
	_, ok = tr.Resolve("c1")
	req.False(ok)
}

func TestTracker_DrainsInTransmissionOrder(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()
	for i, body := range []string{"a", "b", "c", "d"} {
		p := message(body)
		p.CorrelationID = string(rune('z' - i))
		tr.Track(p)
	}

	req.Equal([]string{"a", "b", "c", "d"}, bodies(tr.Drain()))
	req.Zero(tr.Len())
}

func TestHandle_ResolvesOnce(t *testing.T) {
	req := require.New(t)
	h := newHandle(chat.SendMessageKind)
	_, done := h.Result()
	req.False(done)

	req.True(h.resolve(Result{MessageID: "srv-1"}))
	req.False(h.resolve(Result{MessageID: "srv-2"}))

	res, err := h.Wait(context.Background())
	req.NoError(err)
	req.Equal(chat.MessageID("srv-1"), res.MessageID)
}

func TestHandle_WaitHonorsContext(t *testing.T) {
	req := require.New(t)
	h := newHandle(chat.WhoKind)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Wait(ctx)

	req.ErrorIs(err, context.DeadlineExceeded)
}
