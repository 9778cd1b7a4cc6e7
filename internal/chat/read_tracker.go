package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mfigueredo/social-live/internal/bus"
	"github.com/mfigueredo/social-live/internal/domain"
)

const ackTimeout = 10 * time.Second

// ReadTracker issues best-effort read receipts for the currently selected
// conversation. Selecting a conversation bumps a generation counter; an ack
// that was in flight when the selection changed is discarded on completion
// rather than applied to the new conversation's state.
type ReadTracker struct {
	api    domain.ChatAPI
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	selected   string
	acked      map[string]bool
	peerRead   map[string]bool
}

// NewReadTracker creates a ReadTracker with no conversation selected.
func NewReadTracker(api domain.ChatAPI, logger *slog.Logger) *ReadTracker {
	return &ReadTracker{
		api:      api,
		logger:   logger,
		acked:    make(map[string]bool),
		peerRead: make(map[string]bool),
	}
}

// Select switches the tracked conversation, invalidating any in-flight acks
// issued for the previous one.
func (r *ReadTracker) Select(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == conversationID {
		return
	}
	r.generation++
	r.selected = conversationID
	r.acked = make(map[string]bool)
}

// Selected returns the currently selected conversation id.
func (r *ReadTracker) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// MarkMessageRead sends a best-effort read receipt for a message in the
// currently selected conversation. The result is recorded locally only if
// the same conversation is still selected when the call completes.
func (r *ReadTracker) MarkMessageRead(ctx context.Context, messageID string) {
	r.mu.Lock()
	if r.acked[messageID] {
		r.mu.Unlock()
		return
	}
	gen := r.generation
	r.mu.Unlock()

	go func() {
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
		defer cancel()

		err := r.api.MarkMessageRead(ackCtx, messageID)

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.generation {
			// Conversation changed while the ack was in flight.
			return
		}
		if err != nil {
			r.logger.Warn("read receipt failed", "message", messageID, "error", err)
			return
		}
		r.acked[messageID] = true
	}()
}

// Acked reports whether a read receipt for the message was confirmed within
// the current conversation selection.
func (r *ReadTracker) Acked(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked[messageID]
}

// Attach subscribes the tracker to message_read events, which signal that a
// message the viewer sent was read by its recipient.
func (r *ReadTracker) Attach(b *bus.Bus) func() {
	return b.Subscribe(func(event domain.InboundEvent) {
		if event.Type != domain.EventMessageRead || event.MessageRead == nil {
			return
		}
		r.mu.Lock()
		r.peerRead[event.MessageRead.MessageID] = true
		r.mu.Unlock()
	})
}

// PeerRead reports whether the recipient has read the given sent message.
func (r *ReadTracker) PeerRead(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerRead[messageID]
}
