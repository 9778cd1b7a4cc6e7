// Package live owns the persistent WebSocket connection to the server: one
// logical connection per authenticated session, reconnected with linear
// backoff after unexpected closures.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mfigueredo/social-live/internal/domain"
)

// ErrUnauthorized is returned when the server rejects the identity during
// the handshake. It is terminal: no reconnection is attempted.
var ErrUnauthorized = errors.New("live: identity rejected")

// Identity is the authenticated session the connection is opened for.
type Identity struct {
	SubjectID  string
	Credential string
}

// MessageHandler receives each raw inbound frame. The manager does not
// interpret payloads beyond framing; decoding belongs to the event bus.
type MessageHandler func(raw []byte)

// StateListener observes connection-state transitions.
type StateListener func(domain.ConnectionState)

// Manager owns the live connection for one session. At most one physical
// connection and at most one pending reconnect timer exist at any time; a
// new connection attempt supersedes, never races, the previous one.
type Manager struct {
	baseURL     string
	maxAttempts int
	baseDelay   time.Duration
	dialer      *websocket.Dialer
	logger      *slog.Logger

	mu        sync.Mutex
	identity  *Identity
	state     domain.ConnectionState
	conn      *websocket.Conn
	gen       uint64
	attempt   int
	retry     *time.Timer
	onMessage MessageHandler
	listeners []StateListener
}

// NewManager creates a disconnected Manager. baseDelay is multiplied by the
// attempt number to produce the reconnect delay; after maxAttempts failed
// attempts the manager gives up.
func NewManager(baseURL string, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
		state:  domain.ConnectionState{Phase: domain.PhaseDisconnected},
	}
}

// OnMessage registers the single upstream consumer of raw frames. It must be
// called before Connect.
func (m *Manager) OnMessage(h MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = h
}

// OnStateChange registers a listener for state transitions.
func (m *Manager) OnStateChange(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is currently established.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase == domain.PhaseConnected
}

// Connect opens the live connection for the given identity. Calling it while
// already connecting or connected with the same identity is a no-op; a
// different identity tears down the previous connection first. A handshake
// rejection returns ErrUnauthorized and is not retried; transport failures
// start the reconnect schedule.
func (m *Manager) Connect(ctx context.Context, id Identity) error {
	m.mu.Lock()

	if m.identity != nil && *m.identity == id {
		switch m.state.Phase {
		case domain.PhaseConnecting, domain.PhaseConnected:
			m.mu.Unlock()
			return nil
		case domain.PhaseReconnecting:
			// Manual connect supersedes the pending retry timer.
			m.cancelRetryLocked()
		}
	} else if m.identity != nil {
		m.teardownLocked()
	}

	m.identity = &id
	m.attempt = 0
	m.gen++
	gen := m.gen
	notify := m.setStateLocked(domain.ConnectionState{Phase: domain.PhaseConnecting})
	m.mu.Unlock()
	notify()

	return m.dial(ctx, id, gen)
}

// Disconnect closes the connection, cancels any pending reconnect timer, and
// clears the identity. Safe to call in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	notify := m.setStateLocked(domain.ConnectionState{Phase: domain.PhaseDisconnected})
	m.mu.Unlock()
	notify()
}

// dial attempts one physical connection. gen identifies the logical
// connection attempt; if the manager moved on while the handshake was in
// flight, the result is discarded.
func (m *Manager) dial(ctx context.Context, id Identity, gen uint64) error {
	wsURL, err := m.buildURL(id)
	if err != nil {
		return err
	}

	conn, resp, err := m.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	if gen != m.gen || m.identity == nil || *m.identity != id {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}

	if err != nil {
		if isAuthRejection(resp) {
			m.identity = nil
			notify := m.setStateLocked(domain.ConnectionState{Phase: domain.PhaseDisconnected})
			m.mu.Unlock()
			notify()
			return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}

		notify := m.scheduleReconnectLocked()
		m.mu.Unlock()
		notify()
		return fmt.Errorf("dial live connection: %w", err)
	}

	m.conn = conn
	m.attempt = 0
	notify := m.setStateLocked(domain.ConnectionState{Phase: domain.PhaseConnected})
	handler := m.onMessage
	m.mu.Unlock()
	notify()

	m.logger.Info("live connection established", "subject", id.SubjectID)
	go m.readLoop(conn, gen, handler)
	return nil
}

// readLoop pumps frames from one physical connection until it fails. A read
// error from a superseded connection is ignored.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64, handler MessageHandler) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		if handler != nil {
			handler(message)
		}
	}
}

func (m *Manager) handleReadError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.identity == nil {
		// Superseded connection or explicit disconnect already handled it.
		m.mu.Unlock()
		return
	}

	m.logger.Warn("live connection lost", "error", err)
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	notify := m.scheduleReconnectLocked()
	m.mu.Unlock()
	notify()
}

// scheduleReconnectLocked arranges the next connection attempt, or gives up
// once the attempt budget is exhausted. Any previously pending timer is
// cancelled first, so only one reconnect is ever outstanding.
func (m *Manager) scheduleReconnectLocked() func() {
	m.cancelRetryLocked()

	m.attempt++
	if m.attempt > m.maxAttempts {
		m.logger.Error("reconnect attempts exhausted", "attempts", m.maxAttempts)
		m.identity = nil
		return m.setStateLocked(domain.ConnectionState{Phase: domain.PhaseDisconnected, GaveUp: true})
	}

	id := *m.identity
	gen := m.gen
	delay := time.Duration(m.attempt) * m.baseDelay
	m.logger.Info("scheduling reconnect", "attempt", m.attempt, "delay", delay)

	m.retry = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if gen != m.gen || m.identity == nil || *m.identity != id {
			m.mu.Unlock()
			return
		}
		m.gen++
		nextGen := m.gen
		m.retry = nil
		m.mu.Unlock()

		if err := m.dial(context.Background(), id, nextGen); err != nil {
			m.logger.Warn("reconnect attempt failed", "error", err)
		}
	})

	return m.setStateLocked(domain.ConnectionState{
		Phase:   domain.PhaseReconnecting,
		Attempt: m.attempt,
	})
}

// teardownLocked closes the physical connection and cancels any pending
// retry without emitting a state transition.
func (m *Manager) teardownLocked() {
	m.cancelRetryLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.identity = nil
	m.attempt = 0
	m.gen++
}

func (m *Manager) cancelRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// setStateLocked records the new state and returns the notification to run
// after the lock is released.
func (m *Manager) setStateLocked(st domain.ConnectionState) func() {
	m.state = st
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	return func() {
		for _, l := range listeners {
			l(st)
		}
	}
}

func (m *Manager) buildURL(id Identity) (string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse live URL: %w", err)
	}
	u.Path = u.Path + "/" + id.SubjectID
	q := u.Query()
	q.Set("token", id.Credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isAuthRejection(resp *http.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden)
}
