package transport

import (
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
)

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Subscribe(event string, h Handler) func() {
	args := m.Called(event, h)
	return args.Get(0).(func())
}

func (m *MockBus) Publish(event string, payload any) bool {
	args := m.Called(event, payload)
	return args.Bool(0)
}

func (m *MockBus) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBus) OnStatus(fn func(Status)) func() {
	args := m.Called(fn)
	return args.Get(0).(func())
}

// FakeBus is an in-memory Bus for consumer tests. It records every publish
// in order and lets tests push inbound events and status transitions.
type FakeBus struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string][]Handler
	statusSubs []func(Status)
	published  []PublishedEvent
}

type PublishedEvent struct {
	Event   string
	Payload any
}

func NewFakeBus(connected bool) *FakeBus {
	return &FakeBus{
		connected: connected,
		subs:      make(map[string][]Handler),
	}
}

func (f *FakeBus) Subscribe(event string, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[event] = append(f.subs[event], h)
	idx := len(f.subs[event]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs[event][idx] = nil
	}
}

func (f *FakeBus) Publish(event string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.published = append(f.published, PublishedEvent{Event: event, Payload: payload})
	return true
}

func (f *FakeBus) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeBus) OnStatus(fn func(Status)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusSubs = append(f.statusSubs, fn)
	idx := len(f.statusSubs) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statusSubs[idx] = nil
	}
}

// SetConnected flips connectivity and notifies status observers.
func (f *FakeBus) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	observers := make([]func(Status), len(f.statusSubs))
	copy(observers, f.statusSubs)
	f.mu.Unlock()

	status := StatusDisconnected
	if connected {
		status = StatusConnected
	}
	for _, fn := range observers {
		if fn != nil {
			fn(status)
		}
	}
}

// Deliver pushes one inbound event to subscribers, marshaling payload the
// way the wire would.
func (f *FakeBus) Deliver(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	f.mu.Lock()
	handlers := make([]Handler, len(f.subs[event]))
	copy(handlers, f.subs[event])
	f.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(data)
		}
	}
}

// Published returns a copy of the outbound event log in publish order.
func (f *FakeBus) Published() []PublishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PublishedEvent, len(f.published))
	copy(out, f.published)
	return out
}

// PublishedEvents returns just the event names, in order.
func (f *FakeBus) PublishedEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.published))
	for i, p := range f.published {
		names[i] = p.Event
	}
	return names
}
