// Package notifications merges live-connection notification events with the
// durably fetched notification list into a single deduplicated, ordered,
// counted view.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mfigueredo/social-live/internal/bus"
	"github.com/mfigueredo/social-live/internal/domain"
)

const writeTimeout = 10 * time.Second

// Merge combines durable and live-sourced notifications into one list,
// deduplicated by id and ordered newest-first. A durable entry always wins
// over a live entry with the same id, since the durable source is
// authoritative for the read flag. Live-only entries are included as
// provisional.
func Merge(durable, live []domain.Notification) []domain.Notification {
	merged := make([]domain.Notification, 0, len(durable)+len(live))
	seen := make(map[int64]bool, len(durable))

	for _, n := range durable {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		n.Provisional = false
		merged = append(merged, n)
	}
	for _, n := range live {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		n.Provisional = true
		merged = append(merged, n)
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return merged
}

// UnreadCount counts the entries of a merged list that are still unread. It
// is the single source of truth consumed by the badge.
func UnreadCount(merged []domain.Notification) int {
	count := 0
	for _, n := range merged {
		if !n.Read {
			count++
		}
	}
	return count
}

// Aggregator maintains the notification view for one viewer. Durable state
// arrives via Refresh; live state arrives via the event bus. Read-state
// mutations are applied optimistically and pushed to the server best-effort.
type Aggregator struct {
	api    domain.NotificationAPI
	clock  domain.Clock
	logger *slog.Logger

	mu      sync.Mutex
	durable []domain.Notification
	live    []domain.Notification
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(api domain.NotificationAPI, clock domain.Clock, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		api:    api,
		clock:  clock,
		logger: logger,
	}
}

// Attach subscribes the aggregator to notification events from the live
// connection and returns the remover.
func (a *Aggregator) Attach(b *bus.Bus) func() {
	return b.Subscribe(func(event domain.InboundEvent) {
		if event.Type != domain.EventNotification || event.Notification == nil {
			return
		}
		a.ingestLive(*event.Notification)
	})
}

// ingestLive records a provisional notification from the live connection.
// Events are at-most-once per connection, but a reconnect may replay, so a
// live entry replaces any earlier live entry with the same id.
func (a *Aggregator) ingestLive(n domain.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = a.clock.Now()
	}
	n.Provisional = true

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.live {
		if existing.ID == n.ID {
			a.live[i] = n
			return
		}
	}
	a.live = append(a.live, n)
}

// Refresh replaces the durable list from the server and prunes live entries
// the durable source has confirmed. Consumers that need continuity across a
// reconnect call this rather than assuming a gapless stream.
func (a *Aggregator) Refresh(ctx context.Context) error {
	durable, err := a.api.FetchNotifications(ctx)
	if err != nil {
		return fmt.Errorf("refresh notifications: %w", err)
	}

	confirmed := make(map[int64]bool, len(durable))
	for _, n := range durable {
		confirmed[n.ID] = true
	}

	a.mu.Lock()
	a.durable = durable
	remaining := a.live[:0]
	for _, n := range a.live {
		if !confirmed[n.ID] {
			remaining = append(remaining, n)
		}
	}
	a.live = remaining
	a.mu.Unlock()
	return nil
}

// ServerUnreadCount fetches the server's unread tally, used to seed the
// badge before the first full Refresh completes.
func (a *Aggregator) ServerUnreadCount(ctx context.Context) (int, error) {
	return a.api.FetchUnreadCount(ctx)
}

// Notifications returns the merged, deduplicated, newest-first view.
func (a *Aggregator) Notifications() []domain.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Merge(a.durable, a.live)
}

// UnreadBadge returns the number of unread entries in the merged view.
func (a *Aggregator) UnreadBadge() int {
	return UnreadCount(a.Notifications())
}

// MarkRead flips one notification to read locally and pushes the change to
// the server best-effort. The local change is not rolled back if the push
// fails; the next Refresh reconciles.
func (a *Aggregator) MarkRead(ctx context.Context, id int64) {
	a.mu.Lock()
	for i := range a.durable {
		if a.durable[i].ID == id {
			a.durable[i].Read = true
		}
	}
	for i := range a.live {
		if a.live[i].ID == id {
			a.live[i].Read = true
		}
	}
	a.mu.Unlock()

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := a.api.MarkNotificationRead(writeCtx, id); err != nil {
			a.logger.Warn("mark read failed", "id", id, "error", err)
		}
	}()
}

// MarkAllRead flips every notification to read locally and pushes the change
// to the server best-effort.
func (a *Aggregator) MarkAllRead(ctx context.Context) {
	a.mu.Lock()
	for i := range a.durable {
		a.durable[i].Read = true
	}
	for i := range a.live {
		a.live[i].Read = true
	}
	a.mu.Unlock()

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := a.api.MarkAllNotificationsRead(writeCtx); err != nil {
			a.logger.Warn("mark all read failed", "error", err)
		}
	}()
}

// Delete removes a notification locally and pushes the deletion to the
// server best-effort.
func (a *Aggregator) Delete(ctx context.Context, id int64) {
	a.mu.Lock()
	a.durable = removeByID(a.durable, id)
	a.live = removeByID(a.live, id)
	a.mu.Unlock()

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := a.api.DeleteNotification(writeCtx, id); err != nil {
			a.logger.Warn("delete notification failed", "id", id, "error", err)
		}
	}()
}

func removeByID(list []domain.Notification, id int64) []domain.Notification {
	out := list[:0]
	for _, n := range list {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}
