package bus

import (
	"encoding/json"
	"fmt"

	"github.com/mfigueredo/social-live/internal/domain"
)

// frame is the raw JSON envelope of a live-connection message. Type selects
// which of the remaining fields are meaningful.
type frame struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`

	// notification fields
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Sender  struct {
		Name string `json:"name"`
	} `json:"sender"`

	// typing fields
	SenderID string `json:"sender_id"`
	IsTyping bool   `json:"is_typing"`

	// message_read fields
	MessageID string `json:"message_id"`

	// story_created payload
	Item *storyItem `json:"item"`
}

// storyItem is the raw shape of a newly created story inside a frame.
type storyItem struct {
	ID     json.Number `json:"id"`
	Author struct {
		ID        json.Number `json:"id"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
	} `json:"author"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// errUnknownType marks frames whose type is not one this client handles.
// Such frames are skipped silently rather than treated as malformed.
type errUnknownType struct{ kind string }

func (e errUnknownType) Error() string { return "unknown frame type " + e.kind }

func parseFrame(data []byte) (domain.InboundEvent, error) {
	var raw frame
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("unmarshal frame: %w", err)
	}

	event := domain.InboundEvent{Type: domain.EventType(raw.Type)}
	if raw.CreatedAt != "" {
		t, err := domain.ParseServerTime(raw.CreatedAt)
		if err != nil {
			return domain.InboundEvent{}, fmt.Errorf("frame timestamp: %w", err)
		}
		event.CreatedAt = t
	}

	switch event.Type {
	case domain.EventNotification:
		if raw.ID == 0 {
			return domain.InboundEvent{}, fmt.Errorf("notification frame missing id")
		}
		event.Notification = &domain.Notification{
			ID:            raw.ID,
			Kind:          domain.ParseNotificationKind(raw.Kind),
			Title:         raw.Title,
			Message:       raw.Message,
			SenderSummary: raw.Sender.Name,
			CreatedAt:     event.CreatedAt,
			Provisional:   true,
		}

	case domain.EventTyping:
		if raw.SenderID == "" {
			return domain.InboundEvent{}, fmt.Errorf("typing frame missing sender_id")
		}
		event.Typing = &domain.TypingEvent{
			SenderID: raw.SenderID,
			IsTyping: raw.IsTyping,
		}

	case domain.EventMessageRead:
		if raw.MessageID == "" {
			return domain.InboundEvent{}, fmt.Errorf("message_read frame missing message_id")
		}
		event.MessageRead = &domain.MessageReadEvent{MessageID: raw.MessageID}

	case domain.EventStoryCreated:
		if raw.Item == nil {
			return domain.InboundEvent{}, fmt.Errorf("story_created frame missing item")
		}
		item, err := parseStoryItem(raw.Item)
		if err != nil {
			return domain.InboundEvent{}, err
		}
		event.Story = item

	default:
		return domain.InboundEvent{}, errUnknownType{kind: raw.Type}
	}

	return event, nil
}

func parseStoryItem(raw *storyItem) (*domain.EphemeralItem, error) {
	if raw.ID.String() == "" {
		return nil, fmt.Errorf("story item missing id")
	}
	createdAt, err := domain.ParseServerTime(raw.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("story item %s: %w", raw.ID, err)
	}
	expiresAt, err := domain.ParseServerTime(raw.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("story item %s: %w", raw.ID, err)
	}

	name := raw.Author.FirstName
	if raw.Author.LastName != "" {
		if name != "" {
			name += " "
		}
		name += raw.Author.LastName
	}

	return &domain.EphemeralItem{
		ID:        raw.ID.String(),
		OwnerID:   raw.Author.ID.String(),
		OwnerName: name,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}
