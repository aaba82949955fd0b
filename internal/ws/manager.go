// internal/ws/manager.go
// WebSocket connection manager for the group-chat endpoint: connect,
// reconnect with exponential backoff, teardown, and message send.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"avatar/internal/logger"
)

var (
	// ErrNotConnected is returned by Send when the transport is not open.
	// Unsent messages are not queued; retrying is the caller's concern.
	ErrNotConnected = errors.New("websocket not connected")

	// ErrMaxReconnect is surfaced once when reconnection attempts are
	// exhausted.
	ErrMaxReconnect = errors.New("websocket reconnection failed: max attempts reached")
)

// State is the connection lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Callbacks are the only way connection state transitions are observed.
// OnDisconnect reports whether a reconnect attempt will follow, so callers
// can distinguish a requested teardown from a dropped transport.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(reconnecting bool)
	OnMessage    func(payload map[string]any)
	OnError      func(err error)
}

// Options configures the reconnect policy.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Manager owns a single persistent socket connection. At most one live
// transport exists at any time; the transport handle is never exposed.
type Manager struct {
	url string
	cb  Callbacks
	log *logrus.Entry

	mu              sync.Mutex
	conn            *websocket.Conn
	state           State
	attempts        int
	maxAttempts     int
	baseDelay       time.Duration
	shouldReconnect bool
	reconnectTimer  *time.Timer

	dialer *websocket.Dialer
}

// NewManager creates a manager for the backend at baseURL (the REST base;
// the socket endpoint is derived from it).
func NewManager(baseURL string, cb Callbacks, opts Options) (*Manager, error) {
	endpoint, err := EndpointURL(baseURL)
	if err != nil {
		return nil, err
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Second
	}
	if cb.OnConnect == nil {
		cb.OnConnect = func() {}
	}
	if cb.OnDisconnect == nil {
		cb.OnDisconnect = func(bool) {}
	}
	if cb.OnMessage == nil {
		cb.OnMessage = func(map[string]any) {}
	}
	if cb.OnError == nil {
		cb.OnError = func(error) {}
	}

	return &Manager{
		url:         endpoint,
		cb:          cb,
		log:         logger.WithComponent("ws"),
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// EndpointURL derives the websocket endpoint from the REST base URL:
// http becomes ws, https becomes wss, a trailing /api segment is dropped,
// and the group-chat path is appended.
func EndpointURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in base URL", u.Scheme)
	}

	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api")
	u.Path += "/ws/group-chat"
	u.RawQuery = ""
	return u.String(), nil
}

// Connect opens the transport. It is idempotent: a no-op while a connect is
// in flight or the connection is already open. The dial happens off the
// calling goroutine; the result is reported through the callbacks.
func (m *Manager) Connect() {
	m.mu.Lock()
	// Idempotent while a connect is in flight or the socket is open; a
	// teardown in progress must finish before a fresh attempt starts.
	if m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	if !m.shouldReconnect {
		// Fresh sequence after a Disconnect or after attempts were
		// exhausted; stale attempt counts must not carry over.
		m.attempts = 0
	}
	m.state = StateConnecting
	m.shouldReconnect = true
	m.mu.Unlock()

	go m.dial()
}

func (m *Manager) dial() {
	m.log.WithField("url", m.url).Debug("dialing websocket")
	conn, resp, err := m.dialer.Dial(m.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.log.WithError(err).Warn("websocket dial failed")
		m.cb.OnError(err)
		m.handleClose()
		return
	}

	m.mu.Lock()
	if m.state != StateConnecting || !m.shouldReconnect {
		// Disconnected while the dial was in flight.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.mu.Unlock()

	m.log.Info("websocket connected")
	m.cb.OnConnect()
	m.readPump(conn)
}

// readPump reads frames until the transport closes. Malformed payloads are
// reported and dropped; only the close ends the loop.
func (m *Manager) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.log.WithError(err).Debug("websocket read ended")
			break
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			m.log.WithError(err).Warn("dropping malformed websocket payload")
			m.cb.OnError(fmt.Errorf("malformed websocket payload: %w", err))
			continue
		}
		m.cb.OnMessage(payload)
	}

	m.handleClose()
}

// handleClose runs after every transport teardown, whether the close was
// requested or not, and decides on reconnection.
func (m *Manager) handleClose() {
	m.mu.Lock()
	wasClosing := m.state == StateClosing
	m.conn = nil
	m.state = StateClosed

	var (
		scheduleDelay time.Duration
		schedule      bool
		terminal      bool
	)
	if !wasClosing && m.shouldReconnect {
		if m.attempts < m.maxAttempts {
			scheduleDelay = m.baseDelay << m.attempts
			m.attempts++
			schedule = true
		} else {
			// Attempts exhausted: surface the terminal failure once.
			m.shouldReconnect = false
			terminal = true
		}
	}
	if schedule {
		m.reconnectTimer = time.AfterFunc(scheduleDelay, m.reconnect)
	}
	m.mu.Unlock()

	m.cb.OnDisconnect(schedule)
	if schedule {
		m.log.WithFields(logrus.Fields{"delay": scheduleDelay.String()}).Info("scheduling reconnect")
	}
	if terminal {
		m.log.Error("websocket reconnection attempts exhausted")
		m.cb.OnError(ErrMaxReconnect)
	}
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	if !m.shouldReconnect || m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	go m.dial()
}

// Disconnect tears the connection down and cancels any pending reconnect.
// A later Connect starts a fresh attempt sequence.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	m.attempts = 0
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	if conn != nil {
		m.state = StateClosing
	} else {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send serializes and transmits a frame immediately. Fails with
// ErrNotConnected when the transport is not open.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}
	return writeJSON(conn, v)
}

// writeJSON encodes without HTML escaping so <, >, & survive intact.
func writeJSON(conn *websocket.Conn, v any) error {
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.Close()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the transport is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}
