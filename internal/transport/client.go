package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kubilayture/notes-realtime/internal/stats"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

const (
	StatConnects       = "Connects"
	StatReconnects     = "Reconnects"
	StatEventsReceived = "EventsReceived"
	StatEventsDropped  = "EventsDropped"
	StatPublishes      = "Publishes"
	StatPublishesNoop  = "PublishesNoop"
)

type subscription struct {
	id      int
	event   string
	handler Handler

	mu      sync.Mutex
	removed bool
}

func (s *subscription) remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
}

func (s *subscription) call(payload json.RawMessage) {
	s.mu.Lock()
	removed := s.removed
	s.mu.Unlock()
	if removed {
		return
	}
	s.handler(payload)
}

type statusSub struct {
	id int
	fn func(Status)
}

type outbound struct {
	data []byte
}

// Client owns the single persistent websocket connection to the server.
// It is the only code path allowed to open or close the socket. One Client
// exists per authenticated session; construct it explicitly and inject it
// into consumers rather than sharing it as package state.
type Client struct {
	url    string
	log    *log.Logger
	stats  stats.StatsProvider
	dialer *websocket.Dialer

	mu         sync.Mutex
	token      string
	status     Status
	subs       map[string][]*subscription
	statusSubs []*statusSub
	nextSubId  int
	send       chan outbound
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewClient(url string, logger *log.Logger, sp stats.StatsProvider) *Client {
	sp.RegisterMetric(StatConnects)
	sp.RegisterMetric(StatReconnects)
	sp.RegisterMetric(StatEventsReceived)
	sp.RegisterMetric(StatEventsDropped)
	sp.RegisterMetric(StatPublishes)
	sp.RegisterMetric(StatPublishesNoop)

	return &Client{
		url:    url,
		log:    logger,
		stats:  sp,
		dialer: websocket.DefaultDialer,
		status: StatusDisconnected,
		subs:   make(map[string][]*subscription),
	}
}

// Connect establishes the connection for the given session token and keeps
// it alive with backoff until Close. Calling Connect again with the same
// token is a no-op; a different token tears down the previous connection
// first. The old session is never shared with the new one.
func (c *Client) Connect(token string) {
	c.mu.Lock()
	if c.cancel != nil && c.token == token {
		c.mu.Unlock()
		return
	}

	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	sessionDone := make(chan struct{})

	c.mu.Lock()
	c.token = token
	c.cancel = cancelFn
	c.done = sessionDone
	c.send = make(chan outbound, 256)
	c.mu.Unlock()

	go c.run(ctx, token, sessionDone)
}

// Close tears down the connection and stops reconnecting. Subscriptions
// are kept; a later Connect resumes delivery to them.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.token = ""
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Subscribe registers a handler for the named event. Handlers for one
// event fire in registration order. The returned function removes exactly
// this handler; after it returns, the handler never fires again.
func (c *Client) Subscribe(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubId++
	sub := &subscription{id: c.nextSubId, event: event, handler: h}
	c.subs[event] = append(c.subs[event], sub)

	return func() {
		sub.remove()
		c.mu.Lock()
		defer c.mu.Unlock()
		handlers := c.subs[event]
		for i, s := range handlers {
			if s.id == sub.id {
				c.subs[event] = append(handlers[:i], handlers[i+1:]...)
				break
			}
		}
	}
}

// Publish sends one event to the server, fire-and-forget. If the
// connection is not established the call is a no-op and returns false;
// nothing is queued for later delivery.
func (c *Client) Publish(event string, payload any) bool {
	c.mu.Lock()
	connected := c.status == StatusConnected
	send := c.send
	c.mu.Unlock()

	if !connected || send == nil {
		c.stats.Incr(StatPublishesNoop)
		return false
	}

	data, err := encodeEnvelope(event, payload)
	if err != nil {
		c.log.Printf("transport: encode %s: %v", event, err)
		return false
	}

	select {
	case send <- outbound{data: data}:
		c.stats.Incr(StatPublishes)
		return true
	default:
		c.log.Printf("transport: send buffer full, dropping %s", event)
		c.stats.Incr(StatEventsDropped)
		return false
	}
}

func (c *Client) Connected() bool {
	return c.Status() == StatusConnected
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnStatus registers an observer for connectivity transitions. It is
// called once per transition, never for a repeat of the current state.
func (c *Client) OnStatus(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubId++
	sub := &statusSub{id: c.nextSubId, fn: fn}
	c.statusSubs = append(c.statusSubs, sub)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.statusSubs {
			if s.id == sub.id {
				c.statusSubs = append(c.statusSubs[:i], c.statusSubs[i+1:]...)
				break
			}
		}
	}
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		raw = data
	}

	return json.Marshal(&Envelope{Event: event, Payload: raw})
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	observers := make([]*statusSub, len(c.statusSubs))
	copy(observers, c.statusSubs)
	c.mu.Unlock()

	for _, o := range observers {
		o.fn(s)
	}
}

func (c *Client) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	defer c.setStatus(StatusDisconnected)

	backoff := initialBackoff
	first := true

	for {
		c.setStatus(StatusConnecting)

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, _, err := c.dialer.DialContext(ctx, c.url, header)
		if err != nil {
			c.setStatus(StatusDisconnected)
			c.log.Printf("transport: dial %s: %v", c.url, err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = initialBackoff
		if first {
			c.stats.Incr(StatConnects)
			first = false
		} else {
			c.stats.Incr(StatReconnects)
		}
		c.setStatus(StatusConnected)

		c.serve(ctx, conn)

		select {
		case <-ctx.Done():
			return
		default:
			c.setStatus(StatusDisconnected)
		}
	}
}

// serve runs the read and write pumps for one established socket and
// returns when either exits.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()

	writeDone := make(chan struct{})
	go c.writePump(ctx, conn, send, writeDone)

	c.readPump(conn)

	conn.Close()
	<-writeDone
	c.drain(send)
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send chan outbound, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					c.log.Printf("transport: write: %v", err)
				}
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump delivers inbound events to subscribers serially and in server
// order. A fault in one event's handling is contained to that event.
func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Printf("transport: read: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Printf("transport: malformed frame: %v", err)
			c.stats.Incr(StatEventsDropped)
			continue
		}

		c.stats.Incr(StatEventsReceived)
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *Envelope) {
	c.mu.Lock()
	handlers := make([]*subscription, len(c.subs[env.Event]))
	copy(handlers, c.subs[env.Event])
	c.mu.Unlock()

	for _, sub := range handlers {
		c.invoke(sub, env)
	}
}

// invoke runs one handler, containing panics so a fault in one event's
// handling never tears down the connection or starves other handlers.
func (c *Client) invoke(sub *subscription, env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Printf("transport: handler for %s panicked: %v", env.Event, r)
			c.stats.Incr(StatEventsDropped)
		}
	}()

	sub.call(env.Payload)
}

func (c *Client) drain(send chan outbound) {
	for {
		select {
		case <-send:
		default:
			return
		}
	}
}
