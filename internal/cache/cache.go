// Package cache names the client's query-cache keys and the narrow
// interfaces the realtime layer drives as effect targets. The cache and
// router themselves live in the UI layer; the realtime core only marks
// keys stale and requests route changes, fire-and-forget.
package cache

// Invalidator marks a cached query result stale so the consuming view's
// next read refetches from the source of truth.
type Invalidator interface {
	Invalidate(key string)
}

// Navigator performs a client-side route change.
type Navigator interface {
	Navigate(path string)
}

const (
	KeyFriends            = "friends"
	KeyFriendsPending     = "friends/pending"
	KeyFriendsSent        = "friends/sent"
	KeyNotificationCounts = "notifications/counts"
	KeyThreads            = "messaging/threads"
	KeyNotes              = "notes"
	KeyInvitations        = "invitations"
	KeyMyInvitations      = "my-invitations"
)

func KeyThread(threadId string) string {
	return KeyThreads + "/" + threadId
}

func KeyThreadMessages(threadId string) string {
	return KeyThreads + "/" + threadId + "/messages"
}

func KeyNote(noteId string) string {
	return KeyNotes + "/" + noteId
}
