package notify

import (
	"github.com/kubilayture/notes-realtime/internal/cache"
	"github.com/kubilayture/notes-realtime/internal/types"
)

// DisplayMessage derives the toast body for a notification. The server's
// own message field wins; without it every known type has a total fallback
// template over the data bag, and an unknown type falls back to the title.
func DisplayMessage(n *types.Notification) string {
	if n.Message != "" {
		return n.Message
	}

	userName := "Someone"
	if name, ok := n.DataString("userName"); ok {
		userName = name
	} else if name, ok := n.DataString("fromUserName"); ok {
		userName = name
	}

	switch n.Type {
	case types.NotificationFriendRequest:
		return userName + " sent you a friend request"
	case types.NotificationFriendAccepted:
		return userName + " accepted your friend request"
	case types.NotificationNewMessage:
		return "New message from " + userName
	case types.NotificationNoteInvitation:
		if title, ok := n.DataString("noteTitle"); ok {
			return userName + " invited you to \"" + title + "\""
		}
		return userName + " invited you"
	case types.NotificationNoteShared:
		if title, ok := n.DataString("noteTitle"); ok {
			return userName + " shared \"" + title + "\" with you"
		}
		return userName + " shared a note with you"
	case types.NotificationNoteComment:
		if title, ok := n.DataString("noteTitle"); ok {
			return userName + " commented on \"" + title + "\""
		}
		return userName + " commented"
	case types.NotificationNoteUpdated:
		if title, ok := n.DataString("noteTitle"); ok {
			return userName + " updated \"" + title + "\""
		}
		return userName + " updated a shared note"
	default:
		return n.Title
	}
}

// RedirectPath maps a notification to the route its View action lands on.
// Pure lookup over type and data, no side effects.
func RedirectPath(n *types.Notification) string {
	switch n.Type {
	case types.NotificationFriendRequest, types.NotificationFriendAccepted:
		return "/friends"
	case types.NotificationNewMessage:
		if threadId, ok := n.DataString("threadId"); ok {
			return "/messaging/" + threadId
		}
		return "/messaging"
	case types.NotificationNoteInvitation:
		if invitationId, ok := n.DataString("invitationId"); ok {
			return "/invitations/" + invitationId
		}
		return "/invitations"
	case types.NotificationNoteShared, types.NotificationNoteComment, types.NotificationNoteUpdated:
		if noteId, ok := n.DataString("noteId"); ok {
			return "/notes/" + noteId
		}
		return "/notes"
	default:
		return "/"
	}
}

// InvalidationKeys returns the minimum set of cache keys that must be
// marked stale for a notification. Invalidating a superset is fine;
// invalidating less leaves stale UI.
func InvalidationKeys(n *types.Notification) []string {
	switch n.Type {
	case types.NotificationFriendRequest, types.NotificationFriendAccepted:
		return []string{
			cache.KeyFriends,
			cache.KeyFriendsPending,
			cache.KeyFriendsSent,
			cache.KeyNotificationCounts,
		}
	case types.NotificationNewMessage:
		keys := []string{cache.KeyThreads}
		if threadId, ok := n.DataString("threadId"); ok {
			keys = append(keys,
				cache.KeyThreadMessages(threadId),
				cache.KeyThread(threadId),
			)
		}
		return append(keys, cache.KeyNotificationCounts)
	case types.NotificationNoteInvitation:
		return []string{
			cache.KeyMyInvitations,
			cache.KeyInvitations,
			cache.KeyNotificationCounts,
		}
	case types.NotificationNoteShared, types.NotificationNoteComment, types.NotificationNoteUpdated:
		keys := []string{cache.KeyNotes}
		if noteId, ok := n.DataString("noteId"); ok {
			keys = append(keys, cache.KeyNote(noteId))
		}
		return append(keys, cache.KeyNotificationCounts)
	default:
		return []string{cache.KeyNotificationCounts}
	}
}
