// Package bus decodes raw live-connection frames into typed events and fans
// them out to subscribers.
package bus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/mfigueredo/social-live/internal/domain"
)

// Handler receives every decoded inbound event.
type Handler func(domain.InboundEvent)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a typed publish/subscribe registry over the live connection.
// Dispatch snapshots the subscriber list before invoking any handler, so a
// handler that unsubscribes itself or another handler mid-dispatch never
// affects delivery of the event already in flight.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	closed bool
	logger *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all decoded events and returns its
// remover. The remover is idempotent and is a no-op after Close.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Close tears down the bus. Subsequent Dispatch and Subscribe calls are
// no-ops, and removers returned earlier become no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Dispatch decodes a raw frame and delivers it to every subscriber in
// registration order. Malformed frames are dropped and logged; unrecognized
// frame types are skipped. A bad frame never affects later frames.
func (b *Bus) Dispatch(raw []byte) {
	event, err := parseFrame(raw)
	if err != nil {
		var unknown errUnknownType
		if errors.As(err, &unknown) {
			b.logger.Debug("skipping frame", "type", unknown.kind)
		} else {
			b.logger.Warn("dropping malformed frame", "error", err)
		}
		return
	}

	b.mu.Lock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		sub.handler(event)
	}
}
