package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/kubilayture/notes-realtime/internal/stats"
	"github.com/kubilayture/notes-realtime/internal/testutil"
	"github.com/kubilayture/notes-realtime/internal/transport"
	"github.com/kubilayture/notes-realtime/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recordingInvalidator) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func newTestSession(t *testing.T, bus transport.Bus) *Session {
	s := NewSession(bus, "self", nil, testutil.TestLogger(t), stats.NoopStats{})
	t.Cleanup(s.Close)
	return s
}

func countEvents(published []transport.PublishedEvent, event string) int {
	n := 0
	for _, p := range published {
		if p.Event == event {
			n++
		}
	}
	return n
}

func TestEnterConversationIdempotent(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	s.EnterConversation("t1")

	assert.Equal(t, 1, countEvents(bus.Published(), transport.EventThreadJoin),
		"expected exactly one join signal for repeated enter")
}

func TestEnterDeferredWhileDisconnected(t *testing.T) {
	bus := transport.NewFakeBus(false)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	s.EnterConversation("t2")
	assert.Empty(t, bus.Published(), "expected no join while disconnected")

	bus.SetConnected(true)

	published := bus.Published()
	assert.Equal(t, 2, countEvents(published, transport.EventThreadJoin),
		"expected a join for every intended conversation on connect")
}

func TestRejoinAfterReconnect(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	bus.SetConnected(false)
	bus.SetConnected(true)

	assert.Equal(t, 2, countEvents(bus.Published(), transport.EventThreadJoin),
		"expected original join plus one rejoin")
}

func TestExitConversation(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	s.ExitConversation("t1")

	assert.Equal(t, 1, countEvents(bus.Published(), transport.EventThreadLeave),
		"expected one leave signal")

	// exit without enter is a no-op
	s.ExitConversation("t2")
	assert.Equal(t, 1, countEvents(bus.Published(), transport.EventThreadLeave))

	// re-entering after exit joins again
	s.EnterConversation("t1")
	assert.Equal(t, 2, countEvents(bus.Published(), transport.EventThreadJoin),
		"expected a fresh join after exit")
}

func TestExitBestEffortWhileDisconnected(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	bus.SetConnected(false)
	s.ExitConversation("t1")

	// the leave publish is attempted but the bus drops it; the important
	// part is that local state is gone
	assert.Equal(t, 0, countEvents(bus.Published(), transport.EventThreadLeave),
		"expected leave to be dropped by the disconnected bus")

	bus.SetConnected(true)
	assert.Equal(t, 1, countEvents(bus.Published(), transport.EventThreadJoin),
		"expected no rejoin for an exited conversation")
}

func TestTypingOncePerStreak(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)
	s.idleTimeout = 50 * time.Millisecond

	s.EnterConversation("t1")
	s.Typing("t1")
	s.Typing("t1")
	s.Typing("t1")

	typing := typingEvents(bus.Published())
	require.Len(t, typing, 1, "expected a single started-typing signal per streak")
	assert.True(t, typing[0].IsTyping, "expected the signal to be a start")

	// idle timer fires an explicit stop
	assert.Eventually(t, func() bool {
		events := typingEvents(bus.Published())
		return len(events) == 2 && !events[1].IsTyping
	}, time.Second, 10*time.Millisecond, "expected an explicit stop after the idle timeout")

	// next keystroke starts a new streak
	s.Typing("t1")
	assert.Len(t, typingEvents(bus.Published()), 3, "expected a new start signal after idle")
}

func typingEvents(published []transport.PublishedEvent) []*types.TypingEvent {
	var out []*types.TypingEvent
	for _, p := range published {
		if p.Event == transport.EventMessageTyping {
			out = append(out, p.Payload.(*types.TypingEvent))
		}
	}
	return out
}

func TestTypingKeystrokeResetsIdleTimer(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)
	s.idleTimeout = 80 * time.Millisecond

	s.EnterConversation("t1")
	s.Typing("t1")
	time.Sleep(50 * time.Millisecond)
	s.Typing("t1")
	time.Sleep(50 * time.Millisecond)

	// 100ms elapsed but never 80ms of quiet
	assert.Len(t, typingEvents(bus.Published()), 1, "expected no stop while keystrokes keep arriving")
}

func TestJoinBeforeTypingSignal(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	// typing without entering publishes nothing
	s.Typing("t1")
	assert.Empty(t, bus.Published(), "expected no typing signal before join")

	s.EnterConversation("t1")
	s.Typing("t1")

	events := bus.PublishedEvents()
	joinIdx, typingIdx := -1, -1
	for i, name := range events {
		if name == transport.EventThreadJoin && joinIdx == -1 {
			joinIdx = i
		}
		if name == transport.EventMessageTyping && typingIdx == -1 {
			typingIdx = i
		}
	}
	require.NotEqual(t, -1, typingIdx, "expected a typing signal")
	assert.Less(t, joinIdx, typingIdx, "expected the join signal to precede any typing signal")
}

func TestExitClearsTypingTimerWithoutStopSignal(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)
	s.idleTimeout = 30 * time.Millisecond

	s.EnterConversation("t1")
	s.Typing("t1")
	s.ExitConversation("t1")

	time.Sleep(100 * time.Millisecond)
	typing := typingEvents(bus.Published())
	assert.Len(t, typing, 1, "expected no stop signal fired into a room we already left")
}

func TestInboundTypingEchoDiscarded(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "self",
		User:     &types.User{Id: "self", Name: "Me"},
		IsTyping: true,
	})

	assert.Empty(t, s.TypingUsers("t1"), "expected the local user's echo to be discarded")
}

func TestInboundTypingUpdatesState(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "u1",
		User:     &types.User{Id: "u1", Name: "Alice"},
		IsTyping: true,
	})
	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "u2",
		User:     &types.User{Id: "u2", Name: "Bob"},
		IsTyping: true,
	})

	assert.Equal(t, []string{"Alice", "Bob"}, s.TypingUsers("t1"),
		"expected typers in arrival order")
	assert.Equal(t, "Alice and Bob are typing...", s.Indicator("t1"))

	// explicit stop removes immediately
	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "u1",
		IsTyping: false,
	})
	assert.Equal(t, []string{"Bob"}, s.TypingUsers("t1"),
		"expected explicit stop to remove the typer")
}

func TestTypingStateExpiresWithoutStopSignal(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)
	s.quietPeriod = 50 * time.Millisecond

	s.EnterConversation("t1")
	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "u1",
		User:     &types.User{Id: "u1", Name: "Alice"},
		IsTyping: true,
	})
	require.Equal(t, []string{"Alice"}, s.TypingUsers("t1"))

	// no stop signal, as if the tab closed
	assert.Eventually(t, func() bool {
		return len(s.TypingUsers("t1")) == 0
	}, time.Second, 10*time.Millisecond, "expected typer to expire after the quiet period")
}

func TestTypingStateClearedOnDisconnect(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "u1",
		User:     &types.User{Id: "u1", Name: "Alice"},
		IsTyping: true,
	})
	require.Len(t, s.TypingUsers("t1"), 1)

	bus.SetConnected(false)
	assert.Empty(t, s.TypingUsers("t1"), "expected typing state cleared on connection loss")
}

func TestTypingForUnviewedConversationIgnored(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "other",
		UserId:   "u1",
		User:     &types.User{Id: "u1", Name: "Alice"},
		IsTyping: true,
	})

	assert.Empty(t, s.TypingUsers("other"), "expected no state for a conversation we never entered")
}

func TestSendMessage(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := newTestSession(t, bus)

	s.EnterConversation("t1")
	ok := s.SendMessage("t1", "hello")
	assert.True(t, ok, "expected send to succeed while connected")

	var sent *types.OutgoingMessage
	for _, p := range bus.Published() {
		if p.Event == transport.EventMessageSend {
			sent = p.Payload.(*types.OutgoingMessage)
		}
	}
	require.NotNil(t, sent, "expected a message:send publish")
	assert.Equal(t, "t1", sent.ThreadId)
	assert.Equal(t, "hello", sent.Content)
	assert.NotEmpty(t, sent.MessageId, "expected a client-generated message id")

	assert.False(t, s.SendMessage("t1", ""), "expected empty content to be rejected")
	assert.False(t, s.SendMessage("t2", "hi"), "expected send to an unjoined conversation to fail")

	bus.SetConnected(false)
	assert.False(t, s.SendMessage("t1", "hi"), "expected send to be a no-op while disconnected")
}

func TestMessageChangeInvalidatesViewedThread(t *testing.T) {
	bus := transport.NewFakeBus(true)
	inv := &recordingInvalidator{}
	s := NewSession(bus, "self", inv, testutil.TestLogger(t), stats.NoopStats{})
	t.Cleanup(s.Close)

	s.EnterConversation("t1")
	bus.Deliver(transport.EventMessageNew, &types.Message{Id: "m1", ThreadId: "t1", SenderId: "u1"})

	keys := inv.Keys()
	assert.Contains(t, keys, "messaging/threads/t1/messages", "expected message list invalidation")
	assert.Contains(t, keys, "messaging/threads", "expected thread list invalidation")

	// events for threads we are not viewing do nothing
	bus.Deliver(transport.EventMessageNew, &types.Message{Id: "m2", ThreadId: "t2", SenderId: "u1"})
	assert.Len(t, inv.Keys(), len(keys), "expected no invalidation for an unviewed thread")
}

func TestCloseStopsHandlers(t *testing.T) {
	bus := transport.NewFakeBus(true)
	s := NewSession(bus, "self", nil, testutil.TestLogger(t), stats.NoopStats{})

	s.EnterConversation("t1")
	s.Close()

	bus.Deliver(transport.EventMessageTyping, &types.TypingEvent{
		ThreadId: "t1",
		UserId:   "u1",
		User:     &types.User{Id: "u1", Name: "Alice"},
		IsTyping: true,
	})
	assert.Empty(t, s.TypingUsers("t1"), "expected no state changes after Close")
}
