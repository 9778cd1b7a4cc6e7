package domain

import (
	"fmt"
	"time"
)

// serverTimeLayouts are the timestamp shapes the backend emits. Frames and
// REST payloads use ISO-8601, sometimes without a zone offset.
var serverTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseServerTime parses an ISO-8601 timestamp as sent by the server.
// Zone-less timestamps are interpreted as UTC.
func ParseServerTime(s string) (time.Time, error) {
	for _, layout := range serverTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseNotificationKind maps a server kind string onto the client's
// canonical enumeration. Legacy aliases from older backend versions are
// folded in; unknown values pass through so new server kinds are displayed
// rather than dropped.
func ParseNotificationKind(s string) NotificationKind {
	switch s {
	case "reaction", "like":
		return KindReaction
	case "comment":
		return KindComment
	case "friend-request", "friend_request":
		return KindFriendRequest
	case "friend-accept", "friend_accept":
		return KindFriendAccept
	case "message":
		return KindMessage
	case "story-view", "story_view":
		return KindStoryView
	default:
		return NotificationKind(s)
	}
}
