package domain

import "time"

// EphemeralItem is a time-limited content item ("story"). It is created
// server-side and becomes expired for all viewers once wall-clock time
// passes ExpiresAt. Clients never delete server records; they only decide
// local display eligibility from ExpiresAt.
type EphemeralItem struct {
	// ID is the server-assigned identifier, opaque to the client.
	ID string

	// OwnerID identifies the user that published the item.
	OwnerID string

	// OwnerName is the owner's display name.
	OwnerName string

	// CreatedAt is the server-side publish time.
	CreatedAt time.Time

	// ExpiresAt is when the item stops being visible.
	ExpiresAt time.Time

	// ViewCount is the server-side aggregate view count, used for display
	// only. Per-viewer seen state is tracked locally in the ViewStore.
	ViewCount int
}

// Expired reports whether the item is past its expiry at the given time.
func (it EphemeralItem) Expired(now time.Time) bool {
	return !now.Before(it.ExpiresAt)
}

// StoryGroup is one owner's items, ordered oldest-first, as presented in the
// stories bar.
type StoryGroup struct {
	OwnerID   string
	OwnerName string
	Items     []EphemeralItem

	// HasUnread reports whether at least one item in the group is fresh and
	// unseen by the viewer.
	HasUnread bool

	// Latest is the CreatedAt of the most recent item in the group.
	Latest time.Time
}
