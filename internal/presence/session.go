package presence

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kubilayture/notes-realtime/internal/cache"
	"github.com/kubilayture/notes-realtime/internal/stats"
	"github.com/kubilayture/notes-realtime/internal/transport"
	"github.com/kubilayture/notes-realtime/internal/types"
	"github.com/teris-io/shortid"
)

const (
	// typingIdleTimeout is how long after the last keystroke the local
	// typing streak ends and an explicit stop signal is sent.
	typingIdleTimeout = 2 * time.Second
	// typingQuietPeriod is how long a remote typer is shown without any
	// further signal. Covers abrupt loss (tab closed) where no explicit
	// stop ever arrives.
	typingQuietPeriod = 2 * typingIdleTimeout
)

const (
	StatJoins         = "ThreadJoins"
	StatLeaves        = "ThreadLeaves"
	StatRejoins       = "ThreadRejoins"
	StatTypingSignals = "TypingSignals"
	StatMessagesSent  = "MessagesSent"
)

// Session runs the per-conversation presence protocol for one signed-in
// user: join/leave lifecycle, the local typing intent state machine, and
// the remote typing indicator set. The UI layer calls EnterConversation
// when a conversation becomes visible and ExitConversation when it stops
// being visible; everything else is driven by transport events.
type Session struct {
	bus    transport.Bus
	inv    cache.Invalidator
	log    *log.Logger
	stats  stats.StatsProvider
	selfId string

	idleTimeout time.Duration
	quietPeriod time.Duration

	mu            sync.Mutex
	conversations map[string]*conversation
	unsubs        []func()
}

type conversation struct {
	id string
	// intent records that the user is viewing this conversation; it
	// survives disconnects and drives rejoin.
	intent bool
	// joined tracks whether a join signal was sent on the current
	// connection. Reset on disconnect.
	joined bool

	typingActive bool
	typingTimer  *time.Timer

	typers map[string]*remoteTyper
	// order preserves arrival order for the indicator text.
	order []string
}

type remoteTyper struct {
	name   string
	expire *time.Timer
}

func NewSession(bus transport.Bus, selfId string, inv cache.Invalidator, logger *log.Logger, sp stats.StatsProvider) *Session {
	sp.RegisterMetric(StatJoins)
	sp.RegisterMetric(StatLeaves)
	sp.RegisterMetric(StatRejoins)
	sp.RegisterMetric(StatTypingSignals)
	sp.RegisterMetric(StatMessagesSent)

	s := &Session{
		bus:           bus,
		inv:           inv,
		log:           logger,
		stats:         sp,
		selfId:        selfId,
		idleTimeout:   typingIdleTimeout,
		quietPeriod:   typingQuietPeriod,
		conversations: make(map[string]*conversation),
	}

	s.unsubs = append(s.unsubs,
		bus.Subscribe(transport.EventMessageTyping, s.handleTyping),
		bus.Subscribe(transport.EventMessageNew, s.handleMessageChange),
		bus.Subscribe(transport.EventMessageEdited, s.handleMessageChange),
		bus.Subscribe(transport.EventMessageDeleted, s.handleMessageChange),
		bus.OnStatus(s.handleStatus),
	)

	return s
}

// Close deregisters all transport handlers and drops every conversation
// without emitting leave signals; the server times the memberships out.
func (s *Session) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		s.clearTimersLocked(c)
	}
	s.conversations = make(map[string]*conversation)
}

// EnterConversation marks the conversation as viewed and sends the join
// signal. Calling it again for the same conversation is a no-op. While
// disconnected only the intent is recorded; the join is sent automatically
// on the next connected transition.
func (s *Session) EnterConversation(conversationId string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationId]
	if !ok {
		c = &conversation{id: conversationId, typers: make(map[string]*remoteTyper)}
		s.conversations[conversationId] = c
	}
	c.intent = true
	join := !c.joined && s.bus.Connected()
	if join {
		c.joined = true
	}
	s.mu.Unlock()

	if join {
		s.bus.Publish(transport.EventThreadJoin, &types.ThreadRef{ThreadId: conversationId})
		s.stats.Incr(StatJoins)
	}
}

// ExitConversation sends a best-effort leave signal and drops all state
// for the conversation, including the local typing timer. No stop-typing
// signal is sent into a room we are leaving anyway.
func (s *Session) ExitConversation(conversationId string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationId]
	if !ok {
		s.mu.Unlock()
		return
	}
	joined := c.joined
	s.clearTimersLocked(c)
	delete(s.conversations, conversationId)
	s.mu.Unlock()

	if joined {
		// no-op while disconnected; the server independently times out
		// stale memberships
		s.bus.Publish(transport.EventThreadLeave, &types.ThreadRef{ThreadId: conversationId})
		s.stats.Incr(StatLeaves)
	}
}

// Typing records one local keystroke. The first keystroke of a streak
// emits a single started-typing signal; every keystroke resets the
// inactivity timer that ends the streak with an explicit stop signal.
func (s *Session) Typing(conversationId string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationId]
	// join must have been published before any typing signal
	if !ok || !c.joined || !s.bus.Connected() {
		s.mu.Unlock()
		return
	}

	start := !c.typingActive
	c.typingActive = true
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(s.idleTimeout, func() {
		s.typingIdle(conversationId)
	})
	s.mu.Unlock()

	if start {
		s.bus.Publish(transport.EventMessageTyping, &types.TypingEvent{
			ThreadId: conversationId,
			IsTyping: true,
		})
		s.stats.Incr(StatTypingSignals)
	}
}

// typingIdle ends the local typing streak after the inactivity timeout.
// The stop signal is always explicit; remote UIs should not have to wait
// out their expiry window.
func (s *Session) typingIdle(conversationId string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationId]
	if !ok || !c.typingActive {
		s.mu.Unlock()
		return
	}
	c.typingActive = false
	c.typingTimer = nil
	s.mu.Unlock()

	s.bus.Publish(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: conversationId,
		IsTyping: false,
	})
	s.stats.Incr(StatTypingSignals)
}

// SendMessage publishes a chat message on the realtime channel with a
// client-generated id. It is a documented no-op while disconnected; REST
// remains the system of record for message delivery.
func (s *Session) SendMessage(conversationId, content string) bool {
	s.mu.Lock()
	c, ok := s.conversations[conversationId]
	joined := ok && c.joined
	s.mu.Unlock()

	if !joined || !s.bus.Connected() || content == "" {
		return false
	}

	sid, err := shortid.Generate()
	if err != nil {
		s.log.Print("generate message id:", err)
		sid = ""
	}

	sent := s.bus.Publish(transport.EventMessageSend, &types.OutgoingMessage{
		ThreadId:  conversationId,
		Content:   content,
		MessageId: sid,
	})
	if sent {
		s.stats.Incr(StatMessagesSent)
	}
	return sent
}

// TypingUsers returns the display names of remote users currently typing
// in the conversation, in the order their signals arrived.
func (s *Session) TypingUsers(conversationId string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationId]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(c.order))
	for _, userId := range c.order {
		if typer, ok := c.typers[userId]; ok {
			names = append(names, typer.name)
		}
	}
	return names
}

// Indicator returns the typing indicator line for the conversation, or ""
// when nobody is typing.
func (s *Session) Indicator(conversationId string) string {
	return FormatTypingUsers(s.TypingUsers(conversationId))
}

func (s *Session) handleTyping(payload json.RawMessage) {
	var evt types.TypingEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.log.Print("presence: malformed typing event:", err)
		return
	}

	userId := evt.UserId
	if userId == "" && evt.User != nil {
		userId = evt.User.Id
	}
	// discard our own echo
	if userId == "" || userId == s.selfId {
		return
	}

	name := userId
	if evt.User != nil && evt.User.Name != "" {
		name = evt.User.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[evt.ThreadId]
	if !ok {
		// typing signal for a conversation we are not viewing
		return
	}

	if !evt.IsTyping {
		s.removeTyperLocked(c, userId)
		return
	}

	if typer, ok := c.typers[userId]; ok {
		typer.name = name
		typer.expire.Reset(s.quietPeriod)
		return
	}

	c.typers[userId] = &remoteTyper{
		name: name,
		expire: time.AfterFunc(s.quietPeriod, func() {
			s.expireTyper(evt.ThreadId, userId)
		}),
	}
	c.order = append(c.order, userId)
}

// expireTyper drops a remote typer whose quiet period elapsed without an
// explicit stop, e.g. because their tab closed.
func (s *Session) expireTyper(conversationId, userId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationId]
	if !ok {
		return
	}
	s.removeTyperLocked(c, userId)
}

func (s *Session) removeTyperLocked(c *conversation, userId string) {
	typer, ok := c.typers[userId]
	if !ok {
		return
	}
	typer.expire.Stop()
	delete(c.typers, userId)
	for i, id := range c.order {
		if id == userId {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// handleMessageChange invalidates the viewed conversation's cached
// message list and the thread list when the server pushes a message
// created/edited/deleted event.
func (s *Session) handleMessageChange(payload json.RawMessage) {
	if s.inv == nil {
		return
	}

	var msg types.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Print("presence: malformed message event:", err)
		return
	}
	if msg.ThreadId == "" {
		return
	}

	s.mu.Lock()
	_, viewing := s.conversations[msg.ThreadId]
	s.mu.Unlock()
	if !viewing {
		return
	}

	s.inv.Invalidate(cache.KeyThreadMessages(msg.ThreadId))
	s.inv.Invalidate(cache.KeyThreads)
}

// handleStatus reacts to connectivity transitions: a disconnect clears
// joins and all typing state, a connect replays the join for every
// conversation still marked as viewed.
func (s *Session) handleStatus(status transport.Status) {
	switch status {
	case transport.StatusConnected:
		s.rejoinAll()
	case transport.StatusDisconnected:
		s.dropLiveState()
	}
}

func (s *Session) rejoinAll() {
	s.mu.Lock()
	var rejoin []string
	for id, c := range s.conversations {
		if c.intent && !c.joined {
			c.joined = true
			rejoin = append(rejoin, id)
		}
	}
	s.mu.Unlock()

	for _, id := range rejoin {
		s.bus.Publish(transport.EventThreadJoin, &types.ThreadRef{ThreadId: id})
		s.stats.Incr(StatRejoins)
	}
}

func (s *Session) dropLiveState() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		c.joined = false
		s.clearTimersLocked(c)
	}
}

// clearTimersLocked stops the local typing timer without emitting a stop
// signal and drops all remote typers. Callers hold s.mu.
func (s *Session) clearTimersLocked(c *conversation) {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingActive = false

	for _, typer := range c.typers {
		typer.expire.Stop()
	}
	c.typers = make(map[string]*remoteTyper)
	c.order = nil
}
