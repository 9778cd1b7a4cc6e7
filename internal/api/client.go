package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mfigueredo/social-live/internal/domain"
)

// Client is the REST client for the durable notification and story
// endpoints. It implements domain.NotificationAPI, domain.StoryAPI, and
// domain.ChatAPI.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a REST client that authenticates every request with the
// given bearer token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchNotifications retrieves the viewer's notification list. Entries that
// fail to decode are dropped and logged; one bad entry never discards the
// rest of the page.
func (c *Client) FetchNotifications(ctx context.Context) ([]domain.Notification, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, "/notifications/", &raw); err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}

	notifications := make([]domain.Notification, 0, len(raw))
	for _, item := range raw {
		n, err := decodeNotification(item)
		if err != nil {
			c.logger.Warn("dropping malformed notification", "error", err)
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// FetchUnreadCount retrieves the server's unread notification tally.
func (c *Client) FetchUnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/notifications/unread-count", &resp); err != nil {
		return 0, fmt.Errorf("fetch unread count: %w", err)
	}
	return resp.Count, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d/read", id), nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/mark-all-read", nil, nil)
}

// DeleteNotification removes a notification.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil, nil)
}

// FetchItems retrieves all live ephemeral items visible to the viewer.
func (c *Client) FetchItems(ctx context.Context) ([]domain.EphemeralItem, error) {
	return c.fetchItems(ctx, "/ephemeral-items/")
}

// FetchOwnItems retrieves the given user's own live items.
func (c *Client) FetchOwnItems(ctx context.Context, ownerID string) ([]domain.EphemeralItem, error) {
	return c.fetchItems(ctx, "/ephemeral-items/user/"+url.PathEscape(ownerID))
}

// AcknowledgeView reports that the viewer opened an item.
func (c *Client) AcknowledgeView(ctx context.Context, itemID string) error {
	return c.do(ctx, http.MethodPost, "/ephemeral-items/"+url.PathEscape(itemID)+"/view", nil, nil)
}

// MarkMessageRead reports that the viewer read a message.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/read", nil, nil)
}

func (c *Client) fetchItems(ctx context.Context, path string) ([]domain.EphemeralItem, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	items := make([]domain.EphemeralItem, 0, len(raw))
	for _, entry := range raw {
		item, err := decodeItem(entry)
		if err != nil {
			c.logger.Warn("dropping malformed item", "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
