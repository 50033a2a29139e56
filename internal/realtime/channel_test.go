package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// socketServer is a bare websocket endpoint with just enough control to
// provoke both kinds of disconnect.
type socketServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()
	s := &socketServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.dials++
		s.mu.Unlock()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(s.close)
	return s
}

func (s *socketServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *socketServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *socketServer) push(payload interface{}) {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, conn := range conns {
		conn.WriteJSON(payload)
	}
}

// drop kills connections without a close handshake.
func (s *socketServer) drop() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// closeNormal performs the 1000 close handshake.
func (s *socketServer) closeNormal() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	time.Sleep(100 * time.Millisecond)
	for _, conn := range conns {
		conn.Close()
	}
}

func (s *socketServer) close() {
	s.drop()
	s.srv.Close()
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChannelDeliversEvents(t *testing.T) {
	srv := newSocketServer(t)

	var mu sync.Mutex
	var events []string
	ch := NewChannel("test", srv.url, 50*time.Millisecond, func(data []byte) {
		mu.Lock()
		events = append(events, string(data))
		mu.Unlock()
	}, nil)
	defer ch.Close()

	ch.Open()
	waitFor(t, 2*time.Second, "channel open", func() bool { return ch.State() == StateOpen })

	srv.push(map[string]string{"type": "ping"})
	waitFor(t, 2*time.Second, "event delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	})
}

func TestAbnormalCloseSchedulesReconnect(t *testing.T) {
	srv := newSocketServer(t)

	var mu sync.Mutex
	var states []State
	ch := NewChannel("test", srv.url, 50*time.Millisecond, nil, func(state State) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})
	defer ch.Close()

	ch.Open()
	waitFor(t, 2*time.Second, "channel open", func() bool { return ch.State() == StateOpen })

	srv.drop()
	waitFor(t, 2*time.Second, "reconnect", func() bool { return srv.dialCount() == 2 })
	waitFor(t, 2*time.Second, "channel reopen", func() bool { return ch.State() == StateOpen })

	mu.Lock()
	defer mu.Unlock()
	sawUnexpected, sawScheduled := false, false
	for _, state := range states {
		if state == StateClosedUnexpected {
			sawUnexpected = true
		}
		if state == StateReconnectScheduled {
			sawScheduled = true
		}
		if state == StateClosedIntentional {
			t.Fatalf("dropped connection reported as intentional: %v", states)
		}
	}
	if !sawUnexpected || !sawScheduled {
		t.Fatalf("missing lifecycle states: %v", states)
	}
}

func TestNormalCloseIsFinal(t *testing.T) {
	srv := newSocketServer(t)

	ch := NewChannel("test", srv.url, 50*time.Millisecond, nil, nil)
	defer ch.Close()

	ch.Open()
	waitFor(t, 2*time.Second, "channel open", func() bool { return ch.State() == StateOpen })

	srv.closeNormal()
	waitFor(t, 2*time.Second, "intentional close", func() bool {
		return ch.State() == StateClosedIntentional
	})

	// No retry may follow.
	time.Sleep(200 * time.Millisecond)
	if got := srv.dialCount(); got != 1 {
		t.Fatalf("channel reconnected after a normal close: %d dials", got)
	}
	if ch.State() != StateClosedIntentional {
		t.Fatalf("state drifted after normal close: %v", ch.State())
	}
}

func TestClientCloseNeverReconnects(t *testing.T) {
	srv := newSocketServer(t)

	ch := NewChannel("test", srv.url, 50*time.Millisecond, nil, nil)
	ch.Open()
	waitFor(t, 2*time.Second, "channel open", func() bool { return ch.State() == StateOpen })

	ch.Close()
	if ch.State() != StateClosedIntentional {
		t.Fatalf("state after Close = %v", ch.State())
	}

	time.Sleep(200 * time.Millisecond)
	if got := srv.dialCount(); got != 1 {
		t.Fatalf("channel reconnected after Close: %d dials", got)
	}
}

func TestSendRequiresOpenChannel(t *testing.T) {
	srv := newSocketServer(t)

	ch := NewChannel("test", srv.url, 50*time.Millisecond, nil, nil)
	if err := ch.Send("nope"); err == nil {
		t.Fatalf("Send succeeded on an unopened channel")
	}

	ch.Open()
	waitFor(t, 2*time.Second, "channel open", func() bool { return ch.State() == StateOpen })
	if err := ch.Send(map[string]string{"type": "typing"}); err != nil {
		t.Fatalf("Send failed on open channel: %v", err)
	}
	ch.Close()

	if err := ch.Send("nope"); err == nil {
		t.Fatalf("Send succeeded after Close")
	}
}

func TestDialURLRederivedEachAttempt(t *testing.T) {
	srv := newSocketServer(t)

	var mu sync.Mutex
	urlCalls := 0
	urlFn := func() string {
		mu.Lock()
		urlCalls++
		mu.Unlock()
		return srv.url()
	}

	ch := NewChannel("test", urlFn, 50*time.Millisecond, nil, nil)
	defer ch.Close()

	ch.Open()
	waitFor(t, 2*time.Second, "channel open", func() bool { return ch.State() == StateOpen })

	srv.drop()
	waitFor(t, 2*time.Second, "reconnect", func() bool { return srv.dialCount() == 2 })

	mu.Lock()
	defer mu.Unlock()
	if urlCalls != 2 {
		t.Fatalf("urlFn called %d times, want one call per dial", urlCalls)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:               "idle",
		StateOpen:               "open",
		StateClosedIntentional:  "closed-intentional",
		StateReconnectScheduled: "reconnect-scheduled",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
