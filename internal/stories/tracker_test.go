package stories

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueredo/social-live/internal/bus"
	"github.com/mfigueredo/social-live/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type memViewStore struct {
	mu     sync.Mutex
	viewed map[string]bool
	order  []string
}

func newMemViewStore() *memViewStore {
	return &memViewStore{viewed: make(map[string]bool)}
}

func (s *memViewStore) MarkViewed(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.viewed[itemID] {
		s.viewed[itemID] = true
		s.order = append(s.order, itemID)
	}
	return nil
}

func (s *memViewStore) IsViewed(_ context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewed[itemID], nil
}

func (s *memViewStore) ViewedIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *memViewStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewed = make(map[string]bool)
	s.order = nil
	return nil
}

type fakeStoryAPI struct {
	mu    sync.Mutex
	items []domain.EphemeralItem
	own   []domain.EphemeralItem
	acks  []string
}

func (f *fakeStoryAPI) FetchItems(context.Context) ([]domain.EphemeralItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EphemeralItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeStoryAPI) FetchOwnItems(context.Context, string) ([]domain.EphemeralItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EphemeralItem, len(f.own))
	copy(out, f.own)
	return out, nil
}

func (f *fakeStoryAPI) AcknowledgeView(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, itemID)
	return nil
}

type countingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *countingNotifier) Warn(_, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestTracker(views domain.ViewStore, api domain.StoryAPI, clock domain.Clock, notifier domain.Notifier) *Tracker {
	return NewTracker(
		views, api, clock, notifier,
		"viewer-1",
		24*time.Hour, time.Hour, time.Minute,
		testLogger(),
	)
}

func item(id, owner string, createdAgo, expiresIn time.Duration) domain.EphemeralItem {
	return domain.EphemeralItem{
		ID:        id,
		OwnerID:   owner,
		CreatedAt: baseTime.Add(-createdAgo),
		ExpiresAt: baseTime.Add(expiresIn),
	}
}

func TestRecordViewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	views := newMemViewStore()
	api := &fakeStoryAPI{}
	tr := newTestTracker(views, api, &fakeClock{now: baseTime}, &countingNotifier{})

	require.NoError(t, tr.RecordView(ctx, "s-1"))
	require.NoError(t, tr.RecordView(ctx, "s-1"))

	ids, err := views.ViewedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, ids)

	unread, err := tr.IsUnread(ctx, item("s-1", "o-1", time.Hour, time.Hour), baseTime)
	require.NoError(t, err)
	assert.False(t, unread)

	// The remote acknowledgement is best-effort and detached.
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.acks) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestIsUnreadFreshnessBoundary(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(newMemViewStore(), &fakeStoryAPI{}, &fakeClock{now: baseTime}, &countingNotifier{})

	window := 24 * time.Hour

	stale := item("old", "o-1", window+time.Millisecond, time.Hour)
	unread, err := tr.IsUnread(ctx, stale, baseTime)
	require.NoError(t, err)
	assert.False(t, unread, "item just past the freshness window is not unread")

	fresh := item("new", "o-1", window-time.Millisecond, time.Hour)
	unread, err = tr.IsUnread(ctx, fresh, baseTime)
	require.NoError(t, err)
	assert.True(t, unread, "item just inside the freshness window is unread")
}

func TestGroupAndOrderPutsUnreadFirst(t *testing.T) {
	ctx := context.Background()
	views := newMemViewStore()
	tr := newTestTracker(views, &fakeStoryAPI{}, &fakeClock{now: baseTime}, &countingNotifier{})

	items := []domain.EphemeralItem{
		item("a-1", "alice", 2*time.Hour, time.Hour),
		item("a-2", "alice", time.Hour, time.Hour),
		item("b-1", "bruno", 30*time.Minute, time.Hour), // most recent overall
		item("c-1", "carla", 3*time.Hour, time.Hour),
		item("x-1", "diego", time.Hour, -time.Minute), // expired, excluded
	}

	// The viewer has seen all of bruno's stories, so his group sinks below
	// every group that still has something unread.
	require.NoError(t, views.MarkViewed(ctx, "b-1"))

	groups, err := tr.GroupAndOrder(ctx, items, baseTime)
	require.NoError(t, err)

	require.Len(t, groups, 3)
	assert.Equal(t, "alice", groups[0].OwnerID)
	assert.Equal(t, "carla", groups[1].OwnerID)
	assert.Equal(t, "bruno", groups[2].OwnerID)
	assert.True(t, groups[0].HasUnread)
	assert.False(t, groups[2].HasUnread)

	// Items within a group are oldest-first for viewing order.
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, "a-1", groups[0].Items[0].ID)
	assert.Equal(t, "a-2", groups[0].Items[1].ID)
}

func TestGroupAndOrderIsDeterministic(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(newMemViewStore(), &fakeStoryAPI{}, &fakeClock{now: baseTime}, &countingNotifier{})

	items := []domain.EphemeralItem{
		item("a-1", "alice", time.Hour, time.Hour),
		item("b-1", "bruno", time.Hour, time.Hour), // identical tier and timestamp
		item("c-1", "carla", time.Hour, time.Hour),
	}

	first, err := tr.GroupAndOrder(ctx, items, baseTime)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := tr.GroupAndOrder(ctx, items, baseTime)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Ties fall back to owner id ascending.
	assert.Equal(t, "alice", first[0].OwnerID)
	assert.Equal(t, "bruno", first[1].OwnerID)
	assert.Equal(t, "carla", first[2].OwnerID)
}

func TestExpiryWarningFiresOnce(t *testing.T) {
	ctx := context.Background()
	notifier := &countingNotifier{}
	api := &fakeStoryAPI{own: []domain.EphemeralItem{
		item("mine", "viewer-1", time.Hour, 30*time.Minute),
	}}
	tr := newTestTracker(newMemViewStore(), api, &fakeClock{now: baseTime}, notifier)

	for i := 0; i < 5; i++ {
		tr.checkExpiring(ctx)
	}

	assert.Equal(t, 1, notifier.count())
}

func TestExpiryWarningSkipsDistantAndExpired(t *testing.T) {
	ctx := context.Background()
	notifier := &countingNotifier{}
	api := &fakeStoryAPI{own: []domain.EphemeralItem{
		item("distant", "viewer-1", time.Hour, 2*time.Hour),  // above threshold
		item("expired", "viewer-1", 25*time.Hour, -time.Minute), // already gone
	}}
	tr := newTestTracker(newMemViewStore(), api, &fakeClock{now: baseTime}, notifier)

	tr.checkExpiring(ctx)

	assert.Zero(t, notifier.count())
}

func TestExpiryWarningMentionsMinutesLeft(t *testing.T) {
	ctx := context.Background()
	notifier := &countingNotifier{}
	api := &fakeStoryAPI{own: []domain.EphemeralItem{
		item("mine", "viewer-1", time.Hour, 45*time.Minute),
	}}
	tr := newTestTracker(newMemViewStore(), api, &fakeClock{now: baseTime}, notifier)

	tr.checkExpiring(ctx)

	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.messages[0], "45 minutes")
}

func TestAttachIngestsStoryCreatedEvents(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(newMemViewStore(), &fakeStoryAPI{}, &fakeClock{now: baseTime}, &countingNotifier{})

	b := bus.New(testLogger())
	defer tr.Attach(b)()

	b.Dispatch([]byte(`{
		"type": "story_created",
		"created_at": "2026-08-30T11:30:00Z",
		"item": {
			"id": 77,
			"author": {"id": 9, "first_name": "Elisa"},
			"created_at": "2026-08-30T11:30:00Z",
			"expires_at": "2026-08-31T11:30:00Z"
		}
	}`))

	groups, err := tr.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "9", groups[0].OwnerID)
	require.Len(t, groups[0].Items, 1)
	assert.Equal(t, "77", groups[0].Items[0].ID)
}

func TestRefreshReplacesCachedItems(t *testing.T) {
	ctx := context.Background()
	api := &fakeStoryAPI{items: []domain.EphemeralItem{
		item("s-1", "alice", time.Hour, time.Hour),
	}}
	tr := newTestTracker(newMemViewStore(), api, &fakeClock{now: baseTime}, &countingNotifier{})

	require.NoError(t, tr.Refresh(ctx))
	groups, err := tr.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	api.mu.Lock()
	api.items = nil
	api.mu.Unlock()
	require.NoError(t, tr.Refresh(ctx))

	groups, err = tr.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
