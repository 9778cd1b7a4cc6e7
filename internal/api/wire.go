package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mfigueredo/social-live/internal/domain"
)

// wireNotification is the raw JSON shape of a notification from the REST API.
type wireNotification struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Sender  struct {
		ID        json.Number `json:"id"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
	} `json:"sender"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// wireItem is the raw JSON shape of an ephemeral item from the REST API.
type wireItem struct {
	ID     json.Number `json:"id"`
	Author struct {
		ID        json.Number `json:"id"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
	} `json:"author"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	ViewsCount int    `json:"views_count"`
}

func decodeNotification(data []byte) (domain.Notification, error) {
	var raw wireNotification
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Notification{}, fmt.Errorf("unmarshal notification: %w", err)
	}
	if raw.ID == 0 {
		return domain.Notification{}, fmt.Errorf("notification missing id")
	}

	createdAt, err := domain.ParseServerTime(raw.CreatedAt)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("notification %d: %w", raw.ID, err)
	}

	return domain.Notification{
		ID:            raw.ID,
		Kind:          domain.ParseNotificationKind(raw.Type),
		Title:         raw.Title,
		Message:       raw.Message,
		SenderSummary: displayName(raw.Sender.FirstName, raw.Sender.LastName),
		CreatedAt:     createdAt,
		Read:          raw.IsRead,
	}, nil
}

func decodeItem(data []byte) (domain.EphemeralItem, error) {
	var raw wireItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.EphemeralItem{}, fmt.Errorf("unmarshal item: %w", err)
	}
	if raw.ID.String() == "" {
		return domain.EphemeralItem{}, fmt.Errorf("item missing id")
	}

	createdAt, err := domain.ParseServerTime(raw.CreatedAt)
	if err != nil {
		return domain.EphemeralItem{}, fmt.Errorf("item %s: %w", raw.ID, err)
	}
	expiresAt, err := domain.ParseServerTime(raw.ExpiresAt)
	if err != nil {
		return domain.EphemeralItem{}, fmt.Errorf("item %s: %w", raw.ID, err)
	}

	return domain.EphemeralItem{
		ID:        raw.ID.String(),
		OwnerID:   raw.Author.ID.String(),
		OwnerName: displayName(raw.Author.FirstName, raw.Author.LastName),
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		ViewCount: raw.ViewsCount,
	}, nil
}

func displayName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
