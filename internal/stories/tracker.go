// Package stories tracks ephemeral content: which items the viewer has seen,
// which are still fresh, and which of the viewer's own items are about to
// expire.
package stories

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

const ackTimeout = 10 * time.Second

// Tracker computes unread and expiry state for ephemeral items. Seen state
// is durable and device-local (the ViewStore); freshness and expiry are
// derived from the injected clock. The three axes are independent: seen is
// one-way via RecordView, fresh and expired are pure time functions.
type Tracker struct {
	views    domain.ViewStore
	api      domain.StoryAPI
	clock    domain.Clock
	notifier domain.Notifier
	logger   *slog.Logger

	viewerID      string
	freshness     time.Duration
	warnThreshold time.Duration
	pollInterval  time.Duration

	mu     sync.Mutex
	items  map[string]domain.EphemeralItem
	warned map[string]bool
}

// NewTracker creates a Tracker for the given viewer.
func NewTracker(
	views domain.ViewStore,
	api domain.StoryAPI,
	clock domain.Clock,
	notifier domain.Notifier,
	viewerID string,
	freshness, warnThreshold, pollInterval time.Duration,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		views:         views,
		api:           api,
		clock:         clock,
		notifier:      notifier,
		logger:        logger,
		viewerID:      viewerID,
		freshness:     freshness,
		warnThreshold: warnThreshold,
		pollInterval:  pollInterval,
		items:         make(map[string]domain.EphemeralItem),
		warned:        make(map[string]bool),
	}
}

// RecordView marks the item seen in the durable local record and sends a
// best-effort view acknowledgement to the server. The acknowledgement is
// fire-and-forget: a failure is logged and never reverts local state.
func (t *Tracker) RecordView(ctx context.Context, itemID string) error {
	if err := t.views.MarkViewed(ctx, itemID); err != nil {
		return fmt.Errorf("record view: %w", err)
	}

	go func() {
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
		defer cancel()
		if err := t.api.AcknowledgeView(ackCtx, itemID); err != nil {
			t.logger.Warn("view acknowledgement failed", "item", itemID, "error", err)
		}
	}()

	return nil
}

// IsUnread reports whether the item is still within the freshness window and
// has not been seen on this device.
func (t *Tracker) IsUnread(ctx context.Context, item domain.EphemeralItem, now time.Time) (bool, error) {
	if now.Sub(item.CreatedAt) >= t.freshness {
		return false, nil
	}
	seen, err := t.views.IsViewed(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("check viewed: %w", err)
	}
	return !seen, nil
}

// GroupAndOrder groups live items by owner and orders the groups: owners
// with at least one unread item first, then by most-recent item descending,
// with owner id as the final tiebreak so the ordering is a pure function of
// its inputs. Expired items are excluded; items within a group are ordered
// oldest-first for viewing.
func (t *Tracker) GroupAndOrder(ctx context.Context, items []domain.EphemeralItem, now time.Time) ([]domain.StoryGroup, error) {
	viewedIDs, err := t.views.ViewedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load view record: %w", err)
	}
	viewed := make(map[string]bool, len(viewedIDs))
	for _, id := range viewedIDs {
		viewed[id] = true
	}

	byOwner := make(map[string]*domain.StoryGroup)
	for _, item := range items {
		if item.Expired(now) {
			continue
		}
		g, ok := byOwner[item.OwnerID]
		if !ok {
			g = &domain.StoryGroup{OwnerID: item.OwnerID, OwnerName: item.OwnerName}
			byOwner[item.OwnerID] = g
		}
		g.Items = append(g.Items, item)
		if item.CreatedAt.After(g.Latest) {
			g.Latest = item.CreatedAt
		}
		fresh := now.Sub(item.CreatedAt) < t.freshness
		if fresh && !viewed[item.ID] {
			g.HasUnread = true
		}
	}

	groups := make([]domain.StoryGroup, 0, len(byOwner))
	for _, g := range byOwner {
		sort.Slice(g.Items, func(i, j int) bool {
			a, b := g.Items[i], g.Items[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		groups = append(groups, *g)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.HasUnread != b.HasUnread {
			return a.HasUnread
		}
		if !a.Latest.Equal(b.Latest) {
			return a.Latest.After(b.Latest)
		}
		return a.OwnerID < b.OwnerID
	})

	return groups, nil
}

// Groups returns the grouped, ordered view of the currently cached items.
func (t *Tracker) Groups(ctx context.Context) ([]domain.StoryGroup, error) {
	t.mu.Lock()
	items := make([]domain.EphemeralItem, 0, len(t.items))
	for _, item := range t.items {
		items = append(items, item)
	}
	t.mu.Unlock()

	return t.GroupAndOrder(ctx, items, t.clock.Now())
}

// Refresh replaces the cached item set from the durable source.
func (t *Tracker) Refresh(ctx context.Context) error {
	items, err := t.api.FetchItems(ctx)
	if err != nil {
		return fmt.Errorf("refresh items: %w", err)
	}

	t.mu.Lock()
	t.items = make(map[string]domain.EphemeralItem, len(items))
	for _, item := range items {
		t.items[item.ID] = item
	}
	t.mu.Unlock()
	return nil
}

// Attach subscribes the tracker to new-item events from the live connection
// and returns the remover.
func (t *Tracker) Attach(b *bus.Bus) func() {
	return b.Subscribe(func(event domain.InboundEvent) {
		if event.Type != domain.EventStoryCreated || event.Story == nil {
			return
		}
		t.mu.Lock()
		t.items[event.Story.ID] = *event.Story
		t.mu.Unlock()
	})
}

// Run polls the viewer's own items and raises expiry warnings. It checks
// immediately, then on every tick, and blocks until ctx is cancelled. Expiry
// is time-based, so this loop runs independently of the live connection.
func (t *Tracker) Run(ctx context.Context) {
	t.checkExpiring(ctx)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkExpiring(ctx)
		}
	}
}

// checkExpiring fetches the viewer's own live items and warns about each one
// whose remaining lifetime is within the threshold. At most one warning is
// raised per item per process lifetime.
func (t *Tracker) checkExpiring(ctx context.Context) {
	own, err := t.api.FetchOwnItems(ctx, t.viewerID)
	if err != nil {
		t.logger.Warn("failed to fetch own items", "error", err)
		return
	}

	now := t.clock.Now()
	for _, item := range own {
		remaining := item.ExpiresAt.Sub(now)
		if remaining <= 0 || remaining > t.warnThreshold {
			continue
		}

		t.mu.Lock()
		already := t.warned[item.ID]
		if !already {
			t.warned[item.ID] = true
		}
		t.mu.Unlock()
		if already {
			continue
		}

		minutes := int(remaining.Minutes())
		t.notifier.Warn("Story expiring", fmt.Sprintf("Your story expires in %d minutes", minutes))
		t.logger.Info("raised expiry warning", "item", item.ID, "minutes_left", minutes)
	}
}
