// Package chat consumes the conversation-adjacent live events: typing
// indicators and message read receipts.
package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/mfigueredo/social-live/internal/bus"
	"github.com/mfigueredo/social-live/internal/domain"
)

// Presence tracks which users are currently typing to the viewer. An
// indicator that is not refreshed or explicitly cleared within the timeout
// is cleared automatically, so a lost "stopped typing" frame cannot leave a
// stale indicator. One auto-clear timer exists per sender.
type Presence struct {
	timeout time.Duration

	mu     sync.Mutex
	typing map[string]*time.Timer
	closed bool
}

// NewPresence creates a Presence with the given auto-clear timeout.
func NewPresence(timeout time.Duration) *Presence {
	return &Presence{
		timeout: timeout,
		typing:  make(map[string]*time.Timer),
	}
}

// Attach subscribes the presence tracker to typing events and returns the
// remover.
func (p *Presence) Attach(b *bus.Bus) func() {
	return b.Subscribe(func(event domain.InboundEvent) {
		if event.Type != domain.EventTyping || event.Typing == nil {
			return
		}
		p.set(event.Typing.SenderID, event.Typing.IsTyping)
	})
}

func (p *Presence) set(senderID string, isTyping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if timer, ok := p.typing[senderID]; ok {
		timer.Stop()
		delete(p.typing, senderID)
	}
	if !isTyping {
		return
	}

	p.typing[senderID] = time.AfterFunc(p.timeout, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.typing, senderID)
	})
}

// IsTyping reports whether the given sender currently has a live indicator.
func (p *Presence) IsTyping(senderID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.typing[senderID]
	return ok
}

// TypingSenders returns the senders with live indicators, sorted for
// deterministic display.
func (p *Presence) TypingSenders() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	senders := make([]string, 0, len(p.typing))
	for id := range p.typing {
		senders = append(senders, id)
	}
	sort.Strings(senders)
	return senders
}

// Close stops all outstanding timers and ignores further events.
func (p *Presence) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, timer := range p.typing {
		timer.Stop()
		delete(p.typing, id)
	}
}
