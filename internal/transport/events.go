package transport

import "encoding/json"

// Event names are a contract with the server and must match exactly.
const (
	EventNotificationNew    = "notification:new"
	EventNotificationCounts = "notification:counts"
	EventMessageNew         = "message:new"
	EventMessageEdited      = "message:edited"
	EventMessageDeleted     = "message:deleted"
	EventMessageTyping      = "message:typing"
	EventThreadJoin         = "thread:join"
	EventThreadLeave        = "thread:leave"
	EventMessageSend        = "message:send"
)

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives the raw payload of one inbound event. Handlers for a
// single connection run serially, in server order, and must not block.
type Handler func(payload json.RawMessage)

// Status is the observable connectivity state of the connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Bus is the publish/subscribe surface consumers build on. Subscribe and
// OnStatus return a function that removes exactly the registered handler;
// a removed handler never fires again. Publish is fire-and-forget and is a
// no-op while the connection is not established.
type Bus interface {
	Subscribe(event string, h Handler) func()
	Publish(event string, payload any) bool
	Connected() bool
	OnStatus(fn func(Status)) func()
}
