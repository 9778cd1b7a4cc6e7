package domain

import (
	"context"
	"time"
)

// Clock abstracts wall-clock access so expiry and freshness computations are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Notifier raises user-facing local notifications (e.g. an expiry warning).
// Implementations wrap whatever platform facility is available.
type Notifier interface {
	Warn(title, message string)
}

// ViewStore is the durable, viewer-local record of which ephemeral items
// have been opened on this device. An item absent from the store is unseen;
// presence is monotonic until Clear.
type ViewStore interface {
	// MarkViewed records that the viewer opened the item. Idempotent.
	MarkViewed(ctx context.Context, itemID string) error

	// IsViewed reports whether the item has been recorded as viewed.
	IsViewed(ctx context.Context, itemID string) (bool, error)

	// ViewedIDs returns all recorded item ids.
	ViewedIDs(ctx context.Context) ([]string, error)

	// Clear removes every recorded id (explicit local cache clear).
	Clear(ctx context.Context) error
}

// NotificationAPI is the durable REST boundary for notifications.
type NotificationAPI interface {
	// FetchNotifications retrieves the viewer's notification list, newest
	// first. Authoritative for the read flag.
	FetchNotifications(ctx context.Context) ([]Notification, error)

	// FetchUnreadCount retrieves the server's unread tally.
	FetchUnreadCount(ctx context.Context) (int, error)

	// MarkNotificationRead marks a single notification read.
	MarkNotificationRead(ctx context.Context, id int64) error

	// MarkAllNotificationsRead marks every notification read.
	MarkAllNotificationsRead(ctx context.Context) error

	// DeleteNotification removes a notification.
	DeleteNotification(ctx context.Context, id int64) error
}

// StoryAPI is the durable REST boundary for ephemeral items.
type StoryAPI interface {
	// FetchItems retrieves all currently live items visible to the viewer.
	FetchItems(ctx context.Context) ([]EphemeralItem, error)

	// FetchOwnItems retrieves the given user's own live items.
	FetchOwnItems(ctx context.Context, ownerID string) ([]EphemeralItem, error)

	// AcknowledgeView reports that the viewer opened an item. Best-effort;
	// callers may ignore the error.
	AcknowledgeView(ctx context.Context, itemID string) error
}

// ChatAPI is the durable REST boundary for message read receipts.
type ChatAPI interface {
	// MarkMessageRead reports that the viewer read a message. Best-effort.
	MarkMessageRead(ctx context.Context, messageID string) error
}
