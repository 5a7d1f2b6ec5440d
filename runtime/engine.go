// Package runtime is the client session engine. It owns the connection,
// speaks the wire protocol, multiplexes inbound frames against outbound
// commands and publishes display events. One Engine is one session.
package runtime

import (
	"cim/auth"
	"cim/contract"
	"cim/domain"
	"cim/domain/chat"
	"cim/domain/event"
	"cim/errors"
	"cim/moderation"
	"cim/observability"
	"cim/projection"
	"cim/protocol"
	"cim/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Engine is the session-scoped object. Every mutation of the session, the
// outbound queue and the conversation happens under mu, in one critical
// section, and events are published under the same lock so their order
// matches the order of the mutations.
type Engine struct {
	log    *slog.Logger
	opts   Options
	dialer contract.Dialer
	sinks  []contract.HistorySink
	filter *moderation.Filter
	stats  *observability.Stats
	clock  func() time.Time

	mu        sync.Mutex
	conn      domain.ConnectionState
	session   *Session
	outbox    *Outbox
	tracker   *Tracker
	model     *projection.Conversation
	bus       *Bus
	link      *link
	started   bool
	closed    bool
	stopWatch func() bool

	wake     chan struct{}
	sup      *workers.Supervisor
	quitOnce sync.Once
}

// Snapshot is a consistent point in time copy of the engine state.
type Snapshot struct {
	Connection domain.ConnectionState
	Session    SessionView
	Channels   []projection.ChannelView
	Queued     int
	InFlight   int
}

// NewEngine validates opts and builds an idle engine. filter may be nil.
func NewEngine(log *slog.Logger, dialer contract.Dialer, opts Options,
	filter *moderation.Filter, sinks ...contract.HistorySink) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := auth.ValidateCredentials(auth.Credentials{Username: opts.Username, Password: opts.Password}); err != nil {
		return nil, err
	}
	stats := observability.NewStats()
	return &Engine{
		log:     log,
		opts:    opts,
		dialer:  dialer,
		sinks:   sinks,
		filter:  filter,
		stats:   stats,
		clock:   time.Now,
		conn:    domain.Disconnected,
		session: NewSession(opts.Username),
		outbox:  NewOutbox(opts.OutboundQueueMaxDepth),
		tracker: NewTracker(),
		model:   projection.NewConversation(opts.ChannelHistoryRetention),
		bus:     NewBus(),
		wake:    make(chan struct{}, 1),
		sup: workers.NewSupervisor(log).OnRestart(func(string, error) {
			stats.IncrWorkerRestarts()
		}),
	}, nil
}

// Start is the explicit connect request. It returns at once; connection
// progress is reported through ConnectionStateChanged events. Canceling ctx
// has the same effect as Quit.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.ErrSessionClosed
	}
	if e.started {
		return errors.ErrAlreadyStarted
	}
	e.started = true

	if len(e.sinks) > 0 {
		history := e.bus.Subscribe()
		e.sup.Add(workers.NewEventFanout(e.log, history, e.opts.SinkTimeout, e.stats, e.sinks...))
	}
	e.sup.Add(NewConnectionManager(e))
	e.stopWatch = context.AfterFunc(ctx, func() { e.Quit() })

	go e.sup.Run(ctx)
	e.log.Info("Engine started", "username", e.opts.Username)
	return nil
}

// Subscribe returns the display events published from now on.
func (e *Engine) Subscribe() *Subscription {
	return e.bus.Subscribe()
}

func (e *Engine) SendMessage(channel, body string) (*Handle, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.ErrEmptyMessage
	}
	if !utf8.ValidString(body) {
		return nil, fmt.Errorf("%w: message body", errors.ErrInvalidEncoding)
	}
	if len(body) > protocol.MaxTextSize {
		return nil, fmt.Errorf("%w: %d bytes, frame limit is %d", errors.ErrMessageTooLong, len(body), protocol.MaxTextSize)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	cmd := chat.SendMessageCommand{
		Channel:       channel,
		Body:          body,
		ProvisionalID: chat.NewProvisionalID(),
		CreatedAt:     now,
	}
	if err := e.check(cmd); err != nil {
		return nil, err
	}
	if limit := e.session.LengthLimit; limit >= 0 {
		if n := utf8.RuneCountInString(body); n > limit {
			return nil, fmt.Errorf("%w: %d characters, limit is %d", errors.ErrMessageTooLong, n, limit)
		}
	}
	e.model.AppendPending(chat.Message{
		ProvisionalID: cmd.ProvisionalID,
		Channel:       channel,
		Sender:        e.session.Identity,
		Body:          body,
		Timestamp:     now,
	})
	return e.enqueue(cmd, now), nil
}

func (e *Engine) JoinChannel(name string) (*Handle, error) {
	if err := auth.ValidateChannel(name); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := chat.JoinChannelCommand{Channel: name}
	if err := e.check(cmd); err != nil {
		return nil, err
	}
	e.session.SetMembership(name, domain.Joining)
	return e.enqueue(cmd, e.clock()), nil
}

func (e *Engine) LeaveChannel(name string) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := chat.LeaveChannelCommand{Channel: name}
	if err := e.check(cmd); err != nil {
		return nil, err
	}
	e.session.SetMembership(name, domain.Leaving)
	return e.enqueue(cmd, e.clock()), nil
}

// ChangeNick asks the server for a new username. The identity changes on ACK.
func (e *Engine) ChangeNick(username string) (*Handle, error) {
	if err := auth.ValidateUsername(username); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := chat.ChangeNickCommand{Username: username}
	if err := e.check(cmd); err != nil {
		return nil, err
	}
	return e.enqueue(cmd, e.clock()), nil
}

// Who asks for the online members of channel, or of the server when channel is empty.
func (e *Engine) Who(channel string) (*Handle, error) {
	if channel != "" {
		if err := auth.ValidateChannel(channel); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := chat.WhoCommand{Channel: channel}
	if err := e.check(cmd); err != nil {
		return nil, err
	}
	return e.enqueue(cmd, e.clock()), nil
}

// Quit ends the session: pending commands are abandoned, timers canceled and
// the socket closed. It is always allowed and returns a resolved handle.
func (e *Engine) Quit() *Handle {
	e.quitOnce.Do(e.shutdown)
	return resolvedHandle(chat.QuitKind, nil)
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Connection: e.conn,
		Session:    e.session.View(),
		Channels:   e.model.Snapshot(),
		Queued:     e.outbox.Len(),
		InFlight:   e.tracker.Len(),
	}
}

// Stats returns the engine counters along with a fresh sample of the
// process usage. A failed sample leaves Process zero.
func (e *Engine) Stats() observability.StatsSnapshot {
	s := e.stats.Snapshot()
	usage, err := observability.SampleProcess()
	if err != nil {
		e.log.Debug("Failed to collect self stats", "error", err)
		return s
	}
	s.Process = usage
	return s
}

func (e *Engine) check(cmd chat.Command) error {
	if e.closed {
		return &errors.IllegalStateError{Op: string(cmd.Kind()), State: string(domain.Terminated)}
	}
	return e.session.Check(cmd)
}

func (e *Engine) enqueue(cmd chat.Command, now time.Time) *Handle {
	pending := newPendingCommand(cmd, now)
	if dropped := e.outbox.Push(pending); dropped != nil {
		e.stats.IncrDroppedCommands()
		e.log.Warn("Outbound queue full, dropping oldest message", "channel", dropped.Command.Target())
		e.fail(dropped, &errors.DeliveryFailedError{Reason: "outbound queue overflow", Err: errors.ErrQueueOverflow})
	}
	e.notifyWriter()
	return pending.Handle
}

func (e *Engine) notifyWriter() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) publish(events ...event.DisplayEvent) {
	e.bus.Publish(events...)
}

func (e *Engine) setConn(to domain.ConnectionState, attempt int, cause error) {
	from := e.conn
	if from == to {
		return
	}
	e.conn = to
	e.log.Info("Connection state changed", "from", from, "to", to, "attempt", attempt)
	e.publish(event.ConnectionStateChanged{From: from, To: to, Attempt: attempt, Err: cause, At: e.clock()})
}

// nextOutbound pops the head of the queue for the writer of l. The
// correlation id is assigned here, at transmit time, and the command moves
// to the tracker.
func (e *Engine) nextOutbound(l *link) (protocol.Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.link != l || e.conn != domain.Connected {
		return protocol.Frame{}, false
	}
	pending, ok := e.outbox.Pop()
	if !ok {
		return protocol.Frame{}, false
	}
	pending.CorrelationID = uuid.NewString()
	pending.SentAt = e.clock()
	e.tracker.Track(pending)
	if msg, ok := pending.Command.(chat.SendMessageCommand); ok {
		e.model.MarkSent(msg.Channel, msg.ProvisionalID)
	}
	return frameFor(pending.Command, pending.CorrelationID), true
}

// rejectOutbound fails the in-flight command whose frame could not be
// encoded. The link is kept.
func (e *Engine) rejectOutbound(correlationID string, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending, ok := e.tracker.Resolve(correlationID)
	if !ok {
		return
	}
	e.log.Error("Command cannot be encoded", "kind", pending.Command.Kind(), "error", cause)
	e.fail(pending, &errors.DeliveryFailedError{Reason: "command cannot be encoded", Err: cause})
}

func (e *Engine) beginConnect(attempt int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.setConn(domain.Connecting, attempt, nil)
	return true
}

func (e *Engine) beginHandshake() (protocol.Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return protocol.Frame{}, false
	}
	e.setConn(domain.Handshaking, 0, nil)
	e.session.BeginAuth()
	return protocol.Frame{
		Type:          protocol.TypeAuth,
		CorrelationID: uuid.NewString(),
		Payload:       e.session.AuthPayload(e.opts.Password, e.opts.ClientVersion, e.clock()),
	}, true
}

// handshakeDone installs l as the current link. Commands left unacknowledged
// on the previous link go back to the head of the queue, and when the server
// did not resume the session every joined channel is joined again first.
func (e *Engine) handshakeDone(l *link, ack protocol.Payload) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	now := e.clock()
	first := e.session.State != domain.Authenticated
	requested := e.session.Identity
	resumed := e.session.Authenticated(ack)

	requeued := e.tracker.Drain()
	for _, pending := range requeued {
		pending.RetryCount++
		pending.CorrelationID = ""
		if msg, ok := pending.Command.(chat.SendMessageCommand); ok {
			e.model.MarkPending(msg.Channel, msg.ProvisionalID)
		}
	}
	e.outbox.PushFront(requeued...)
	e.stats.AddRetransmissions(len(requeued))

	rejoined := 0
	if !first && !resumed {
		var rejoins []*PendingCommand
		for _, channel := range e.session.Channels(domain.Joined) {
			if e.outbox.HasJoin(channel) {
				continue
			}
			e.session.SetMembership(channel, domain.Joining)
			rejoins = append(rejoins, newPendingCommand(chat.JoinChannelCommand{Channel: channel, Rejoin: true}, now))
		}
		e.outbox.PushFront(rejoins...)
		rejoined = len(rejoins)
	}

	e.link = l
	e.setConn(domain.Connected, 0, nil)
	e.publish(e.handshakeNotices(ack, first, resumed, requested, now)...)
	e.log.Info("Session authenticated",
		"session_id", e.session.ID, "identity", e.session.Identity,
		"resumed", resumed, "requeued", len(requeued), "rejoined", rejoined)
	e.notifyWriter()
	return true
}

func (e *Engine) handshakeNotices(ack protocol.Payload, first, resumed bool, requested string, now time.Time) []event.DisplayEvent {
	var notices []event.DisplayEvent
	notice := func(kind event.NoticeKind, text string) {
		notices = append(notices, event.Notice{Kind: kind, Text: text, At: now})
	}
	if first {
		notice(event.SystemNotice, fmt.Sprintf("Connected as %s", e.session.Identity))
	} else if resumed {
		notice(event.ReconnectNotice, "Reconnected to server, session resumed")
	} else {
		notice(event.ReconnectNotice, "Reconnected to server")
	}
	for _, flag := range ack.List(protocol.KeyFlags) {
		switch flag {
		case "username_taken":
			notice(event.UsernameNotice, fmt.Sprintf("Username %q is taken, you are %q", requested, e.session.Identity))
		case "username_invalid":
			notice(event.UsernameNotice, fmt.Sprintf("Username %q is invalid, you are %q", requested, e.session.Identity))
		case "username_missing":
			notice(event.UsernameNotice, fmt.Sprintf("No username given, you are %q", e.session.Identity))
		}
	}
	if motd := ack.Get(protocol.KeyMOTD); motd != "" && first {
		notice(event.MOTDNotice, motd)
	}
	return notices
}

// linkLost records a failed link and enters RECONNECTING. It returns false
// once the session is closed.
func (e *Engine) linkLost(attempt int, cause error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.link = nil
	e.stats.IncrReconnects()
	e.setConn(domain.Reconnecting, attempt, cause)
	return true
}

// terminate ends the session after an unrecoverable failure. Every pending
// command is resolved with a DeliveryFailedError wrapping pendingErr.
func (e *Engine) terminate(cause, pendingErr error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.link = nil
	e.session.Terminate()
	e.abandon(&errors.DeliveryFailedError{Reason: cause.Error(), Err: pendingErr}, true)
	e.setConn(domain.Disconnected, 0, cause)
	e.publish(event.FatalError{Reason: cause.Error(), Err: cause, At: e.clock()})
	e.mu.Unlock()

	e.bus.Close()
}

// abandon resolves every queued and in flight command with err.
func (e *Engine) abandon(err *errors.DeliveryFailedError, notify bool) {
	pending := append(e.tracker.Drain(), e.outbox.Drain()...)
	for _, p := range pending {
		if notify {
			e.fail(p, err)
			continue
		}
		p.Handle.resolve(Result{Err: err.Err})
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	if e.stopWatch != nil {
		e.stopWatch()
	}
	started := e.started
	if !e.closed {
		e.closed = true
		e.link = nil
		e.session.Terminate()
		e.abandon(&errors.DeliveryFailedError{Reason: "session closed", Err: errors.ErrSessionClosed}, false)
		e.setConn(domain.Disconnected, 0, nil)
	}
	e.mu.Unlock()

	e.bus.Close()
	if started {
		e.sup.Stop()
		e.sup.Wait()
	}
	e.model.Reset()

	s := e.Stats()
	e.log.Info("Engine stopped",
		"frames_in", s.FramesIn, "frames_out", s.FramesOut,
		"reconnects", s.Reconnects, "dropped", s.DroppedCommands,
		"protocol_errors", s.ProtocolErrors, "worker_restarts", s.WorkerRestarts,
		"rss_bytes", s.Process.RSSBytes, "cpu_percent", s.Process.CPUPercent)
}
