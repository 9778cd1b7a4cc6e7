package domain

import "time"

// NotificationKind enumerates the notification categories the server emits.
type NotificationKind string

const (
	KindReaction      NotificationKind = "reaction"
	KindComment       NotificationKind = "comment"
	KindFriendRequest NotificationKind = "friend-request"
	KindFriendAccept  NotificationKind = "friend-accept"
	KindMessage       NotificationKind = "message"
	KindStoryView     NotificationKind = "story-view"
)

// Notification is a single entry in the notification center. Identity is by
// ID. Two sources produce Notifications: the durable fetch, which is
// authoritative for Read and historical entries, and the live connection,
// whose entries are provisional until confirmed by the next fetch.
type Notification struct {
	// ID is the server-assigned identifier.
	ID int64

	// Kind categorizes the notification.
	Kind NotificationKind

	// Title is the short heading shown in the notification list.
	Title string

	// Message is the body text.
	Message string

	// SenderSummary is the display name of the user that caused the
	// notification.
	SenderSummary string

	// CreatedAt is the server timestamp of the triggering action.
	CreatedAt time.Time

	// Read reports whether the viewer has already read this entry.
	Read bool

	// Provisional marks entries known only from the live connection, not
	// yet confirmed by the durable source.
	Provisional bool
}
