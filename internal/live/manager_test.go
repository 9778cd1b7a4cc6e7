package live

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueredo/social-live/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// stateRecorder collects every state transition the manager emits.
type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ConnectionState
}

func (r *stateRecorder) record(st domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *stateRecorder) snapshot() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConnectionState, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) last() (domain.ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return domain.ConnectionState{}, false
	}
	return r.states[len(r.states)-1], true
}

var testIdentity = Identity{SubjectID: "42", Credential: "token-42"}

func TestConnectDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/42", r.URL.Path)
		assert.Equal(t, "token-42", r.URL.Query().Get("token"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)); err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	frames := make(chan []byte, 1)
	m := NewManager(wsURL(srv), 3, 10*time.Millisecond, testLogger())
	m.OnMessage(func(raw []byte) { frames <- raw })
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background(), testIdentity))
	assert.True(t, m.IsConnected())

	select {
	case raw := <-frames:
		assert.JSONEq(t, `{"type":"typing"}`, string(raw))
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestConnectIsIdempotentForSameIdentity(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(wsURL(srv), 3, 10*time.Millisecond, testLogger())
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background(), testIdentity))
	require.NoError(t, m.Connect(context.Background(), testIdentity))
	require.NoError(t, m.Connect(context.Background(), testIdentity))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, dials)
}

func TestAuthRejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rec := &stateRecorder{}
	m := NewManager(wsURL(srv), 3, 10*time.Millisecond, testLogger())
	m.OnStateChange(rec.record)

	err := m.Connect(context.Background(), testIdentity)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, m.IsConnected())
	assert.Equal(t, domain.PhaseDisconnected, m.State().Phase)

	// No reconnect may be scheduled for an identity rejection.
	time.Sleep(50 * time.Millisecond)
	for _, st := range rec.snapshot() {
		assert.NotEqual(t, domain.PhaseReconnecting, st.Phase)
	}
}

func TestReconnectBackoffGrowsThenGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &stateRecorder{}
	m := NewManager(wsURL(srv), 3, 10*time.Millisecond, testLogger())
	m.OnStateChange(rec.record)

	err := m.Connect(context.Background(), testIdentity)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthorized)

	require.Eventually(t, func() bool {
		last, ok := rec.last()
		return ok && last.Phase == domain.PhaseDisconnected && last.GaveUp
	}, 2*time.Second, 5*time.Millisecond)

	var attempts []int
	for _, st := range rec.snapshot() {
		if st.Phase == domain.PhaseReconnecting {
			attempts = append(attempts, st.Attempt)
		}
	}

	// Attempts are sequential, so delays (attempt * base) are non-decreasing
	// and no two reconnects are ever outstanding at once.
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.False(t, m.IsConnected())
}

func TestReconnectsAfterServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	accepted := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()

		if first {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &stateRecorder{}
	m := NewManager(wsURL(srv), 5, 10*time.Millisecond, testLogger())
	m.OnStateChange(rec.record)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background(), testIdentity))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return accepted >= 2 && m.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)

	// The drop and recovery must both have been surfaced.
	var sawReconnecting bool
	for _, st := range rec.snapshot() {
		if st.Phase == domain.PhaseReconnecting {
			sawReconnecting = true
			assert.GreaterOrEqual(t, st.Attempt, 1)
		}
	}
	assert.True(t, sawReconnecting)
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &stateRecorder{}
	m := NewManager(wsURL(srv), 10, 20*time.Millisecond, testLogger())
	m.OnStateChange(rec.record)

	_ = m.Connect(context.Background(), testIdentity)
	m.Disconnect()

	before := len(rec.snapshot())
	time.Sleep(100 * time.Millisecond)

	// The pending retry timer was cancelled, so no further transitions occur.
	assert.Equal(t, before, len(rec.snapshot()))
	assert.Equal(t, domain.PhaseDisconnected, m.State().Phase)
}

func TestDisconnectIsSafeInAnyState(t *testing.T) {
	m := NewManager("ws://127.0.0.1:0/ws", 3, 10*time.Millisecond, testLogger())
	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, domain.PhaseDisconnected, m.State().Phase)
	assert.False(t, m.IsConnected())
}
