package presence

import "strings"

// FormatTypingUsers renders the typing indicator line. The grammar is a
// contract with the UI: one name reads "A is typing...", two read
// "A and B are typing...", three or more are comma-joined with the last
// name attached by ", and".
func FormatTypingUsers(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		head := strings.Join(names[:len(names)-1], ", ")
		return head + ", and " + names[len(names)-1] + " are typing..."
	}
}
