// internal/ws/manager_test.go
package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// events collects manager callbacks for assertions. The disconnect channel
// carries the reconnecting flag reported by the manager.
type events struct {
	connect    chan struct{}
	disconnect chan bool
	message    chan map[string]any
	errs       chan error
}

func newEvents() *events {
	return &events{
		connect:    make(chan struct{}, 16),
		disconnect: make(chan bool, 16),
		message:    make(chan map[string]any, 16),
		errs:       make(chan error, 16),
	}
}

func (e *events) callbacks() Callbacks {
	return Callbacks{
		OnConnect:    func() { e.connect <- struct{}{} },
		OnDisconnect: func(reconnecting bool) { e.disconnect <- reconnecting },
		OnMessage:    func(p map[string]any) { e.message <- p },
		OnError:      func(err error) { e.errs <- err },
	}
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// waitDisconnect returns the reconnecting flag of the next disconnect event.
func waitDisconnect(t *testing.T, e *events, what string) bool {
	t.Helper()
	select {
	case reconnecting := <-e.disconnect:
		return reconnecting
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return false
	}
}

// newTestServer upgrades every request and hands the connection to handle.
// The returned counter tracks accepted dials.
func newTestServer(t *testing.T, handle func(conn *websocket.Conn, dial int32)) (*httptest.Server, *int32) {
	t.Helper()
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&dials, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &dials
}

// hold blocks until the peer closes the connection.
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8008/api", want: "ws://localhost:8008/ws/group-chat"},
		{base: "https://example.com/api/", want: "wss://example.com/ws/group-chat"},
		{base: "http://example.com", want: "ws://example.com/ws/group-chat"},
		{base: "ws://example.com/api", want: "ws://example.com/ws/group-chat"},
		{base: "ftp://example.com", wantErr: true},
	}

	for _, tt := range tests {
		got, err := EndpointURL(tt.base)
		if tt.wantErr {
			if err == nil {
				t.Errorf("EndpointURL(%q) should fail", tt.base)
			}
			continue
		}
		if err != nil {
			t.Errorf("EndpointURL(%q) failed: %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EndpointURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestConnectReceiveDisconnect(t *testing.T) {
	srv, _ := newTestServer(t, func(conn *websocket.Conn, _ int32) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"model_response","content":"hi"}`))
		hold(conn)
	})

	ev := newEvents()
	m, err := NewManager(srv.URL+"/api", ev.callbacks(), Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	m.Connect()
	waitSignal(t, ev.connect, "connect")

	select {
	case payload := <-ev.message:
		if payload["type"] != "model_response" {
			t.Errorf("unexpected payload: %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if !m.IsConnected() {
		t.Error("manager should report connected")
	}

	m.Disconnect()
	if waitDisconnect(t, ev, "disconnect") {
		t.Error("requested disconnect must not report a pending reconnect")
	}
	if m.State() != StateClosed {
		t.Errorf("state after disconnect should be closed, got %s", m.State())
	}
}

func TestIdempotentConnect(t *testing.T) {
	srv, dials := newTestServer(t, func(conn *websocket.Conn, _ int32) { hold(conn) })

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{})

	m.Connect()
	m.Connect() // while connecting
	waitSignal(t, ev.connect, "connect")
	m.Connect() // while open

	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(dials); n != 1 {
		t.Errorf("expected exactly 1 dial, got %d", n)
	}
	select {
	case <-ev.connect:
		t.Error("connect callback fired more than once")
	default:
	}
	m.Disconnect()
}

func TestSendNotConnected(t *testing.T) {
	ev := newEvents()
	m, _ := NewManager("http://localhost:1/api", ev.callbacks(), Options{})

	if err := m.SendUserMessage("hello"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestOutboundFrames(t *testing.T) {
	// Echo server: frames sent by the client come back as inbound messages.
	srv, _ := newTestServer(t, func(conn *websocket.Conn, _ int32) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(mt, data)
		}
	})

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{})
	m.Connect()
	waitSignal(t, ev.connect, "connect")
	defer m.Disconnect()

	err := m.InitializeGroupChat(
		[]ModelInfo{{ID: "glm", Name: "GLM-4", Provider: "glm"}},
		SystemPrompts{Mode: "unified", Prompt: "be brief"},
	)
	if err != nil {
		t.Fatalf("InitializeGroupChat failed: %v", err)
	}
	if err := m.SendUserMessage("hello <world>"); err != nil {
		t.Fatalf("SendUserMessage failed: %v", err)
	}

	wantTypes := []string{"initialize_group_chat", "user_message"}
	for _, want := range wantTypes {
		select {
		case payload := <-ev.message:
			if payload["type"] != want {
				t.Errorf("expected frame type %q, got %v", want, payload["type"])
			}
			if want == "user_message" {
				data, _ := payload["data"].(map[string]any)
				if data["content"] != "hello <world>" {
					t.Errorf("angle brackets must survive encoding, got %v", data["content"])
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s echo", want)
		}
	}
}

func TestMalformedPayloadKeepsConnectionOpen(t *testing.T) {
	srv, _ := newTestServer(t, func(conn *websocket.Conn, _ int32) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ok"}`))
		hold(conn)
	})

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{})
	m.Connect()
	waitSignal(t, ev.connect, "connect")
	defer m.Disconnect()

	select {
	case err := <-ev.errs:
		if err == nil {
			t.Error("expected a parse error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for parse error")
	}

	select {
	case payload := <-ev.message:
		if payload["type"] != "ok" {
			t.Errorf("valid frame after malformed one should arrive, got %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection should survive a malformed payload")
	}

	if !m.IsConnected() {
		t.Error("manager should still be connected")
	}
}

func TestReconnectThenResume(t *testing.T) {
	// First accepted connection closes immediately; later ones stay open.
	srv, dials := newTestServer(t, func(conn *websocket.Conn, dial int32) {
		if dial == 1 {
			conn.Close()
			return
		}
		hold(conn)
	})

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{
		MaxAttempts: 5,
		BaseDelay:   20 * time.Millisecond,
	})

	m.Connect()
	waitSignal(t, ev.connect, "first connect")
	if !waitDisconnect(t, ev, "forced disconnect") {
		t.Error("dropped transport should report a pending reconnect")
	}
	waitSignal(t, ev.connect, "reconnect")

	if n := atomic.LoadInt32(dials); n != 2 {
		t.Errorf("expected 2 dials, got %d", n)
	}

	m.mu.Lock()
	attempts := m.attempts
	m.mu.Unlock()
	if attempts != 0 {
		t.Errorf("attempt counter should reset to 0 after successful open, got %d", attempts)
	}
	m.Disconnect()
}

func TestBackoffGrowth(t *testing.T) {
	// Every dial fails, so each cycle is a close-without-successful-open
	// and the attempt counter never resets.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Millisecond,
	})

	var stamps []time.Time

	m.Connect()
	for i := 0; i < 4; i++ {
		select {
		case <-ev.disconnect:
			stamps = append(stamps, time.Now())
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for disconnect %d", i)
		}
	}

	// Gaps between consecutive close cycles follow base * 2^n.
	minGaps := []time.Duration{25 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}
	for i, minGap := range minGaps {
		gap := stamps[i+1].Sub(stamps[i])
		if gap < minGap {
			t.Errorf("reconnect %d fired after %v, want at least %v", i, gap, minGap)
		}
	}
}

func TestMaxAttemptsTerminalErrorOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // all dials now fail

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
	})

	m.Connect()

	terminal := 0
	deadline := time.After(3 * time.Second)
	for terminal == 0 {
		select {
		case err := <-ev.errs:
			if errors.Is(err, ErrMaxReconnect) {
				terminal++
			}
		case <-deadline:
			t.Fatal("terminal error never surfaced")
		}
	}

	// No further attempts or terminal errors after exhaustion.
	time.Sleep(100 * time.Millisecond)
	for {
		select {
		case err := <-ev.errs:
			if errors.Is(err, ErrMaxReconnect) {
				t.Fatal("terminal error fired more than once")
			}
			continue
		default:
		}
		break
	}
	if m.State() != StateClosed {
		t.Errorf("state should be closed after exhaustion, got %s", m.State())
	}
}

func TestConnectAfterExhaustionStartsFreshSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // all dials fail

	ev := newEvents()
	m, _ := NewManager(srv.URL+"/api", ev.callbacks(), Options{
		MaxAttempts: 2,
		BaseDelay:   5 * time.Millisecond,
	})

	// runSequence drives one full Connect cycle to its terminal error and
	// returns how many transport closes happened on the way.
	runSequence := func(label string) int {
		t.Helper()
		m.Connect()
		closes := 0
		deadline := time.After(3 * time.Second)
		for {
			select {
			case <-ev.disconnect:
				closes++
			case err := <-ev.errs:
				if !errors.Is(err, ErrMaxReconnect) {
					continue
				}
				// The final close is delivered before the terminal
				// error; pick up any still buffered.
				for {
					select {
					case <-ev.disconnect:
						closes++
					default:
						return closes
					}
				}
			case <-deadline:
				t.Fatalf("%s: terminal error never surfaced", label)
			}
		}
	}

	first := runSequence("first sequence")
	second := runSequence("second sequence")

	// Each sequence is the initial dial plus MaxAttempts retries. A stale
	// attempt counter would make the second sequence fail terminally after
	// a single dial.
	want := 3
	if first != want {
		t.Errorf("first sequence saw %d closes, want %d", first, want)
	}
	if second != want {
		t.Errorf("reconnect sequence after exhaustion saw %d closes, want %d", second, want)
	}
}
