package types

import (
	"time"
)

type User struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// NotificationType is the closed set of notification types pushed by the
// server. Unknown values are still routed, falling back to generic handling.
type NotificationType string

const (
	NotificationFriendRequest  NotificationType = "friend_request"
	NotificationFriendAccepted NotificationType = "friend_accepted"
	NotificationNoteShared     NotificationType = "note_shared"
	NotificationNoteInvitation NotificationType = "note_invitation"
	NotificationNewMessage     NotificationType = "new_message"
	NotificationNoteComment    NotificationType = "note_comment"
	NotificationNoteUpdated    NotificationType = "note_updated"
)

// Notification matches the backend notification structure. Data is an
// opaque bag keyed by convention per type (threadId, noteId, invitationId,
// userName, noteTitle).
type Notification struct {
	Id        string           `json:"id"`
	UserId    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// DataString returns the named field of the data bag if it is a
// non-empty string.
func (n *Notification) DataString(key string) (string, bool) {
	if n.Data == nil {
		return "", false
	}
	s, ok := n.Data[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// NotificationCounts is the aggregate badge snapshot pushed on
// notification:counts. Each push replaces the previous snapshot in full.
type NotificationCounts struct {
	Invitations int            `json:"invitations"`
	Messages    int            `json:"messages"`
	Friends     int            `json:"friends"`
	ByType      map[string]int `json:"byType"`
}

// TypingEvent is the conversation-scoped message:typing payload, both
// inbound and outbound.
type TypingEvent struct {
	ThreadId string `json:"threadId"`
	UserId   string `json:"userId,omitempty"`
	User     *User  `json:"user,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// ThreadRef is the payload for thread:join and thread:leave.
type ThreadRef struct {
	ThreadId string `json:"threadId"`
}

// OutgoingMessage is the message:send payload. MessageId is generated
// client-side so the server can dedupe resends.
type OutgoingMessage struct {
	ThreadId  string `json:"threadId"`
	Content   string `json:"content"`
	MessageId string `json:"messageId,omitempty"`
}

// Message is the conversation-scoped payload of message:new and
// message:edited. message:deleted carries only the ids.
type Message struct {
	Id        string    `json:"id"`
	ThreadId  string    `json:"threadId"`
	SenderId  string    `json:"senderId"`
	Content   string    `json:"content"`
	IsEdited  bool      `json:"isEdited"`
	Sender    *User     `json:"sender,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
