// internal/chat/timeline.go
package chat

import (
	"strings"
	"sync"
	"time"
)

// recentScan bounds how many trailing messages are checked for duplicate
// submissions, keeping false positives low on long histories.
const recentScan = 5

// Timeline holds the ordered chat history for the session. Messages are
// never removed individually; Clear resets the whole history.
type Timeline struct {
	mu       sync.Mutex
	window   time.Duration
	now      func() time.Time
	messages []Message
	snapshot []Message
}

func NewTimeline(window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Timeline{
		window:   window,
		now:      time.Now,
		snapshot: []Message{},
	}
}

// Append adds a message to the timeline. Re-submissions are silently
// suppressed: a message with an already-known ID, or with the same role and
// identical trimmed content as a recent message inside the dedupe window,
// is a no-op and Append returns false.
func (t *Timeline) Append(m Message) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if m.ID == "" {
		m.ID = NewMessageID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}

	for _, existing := range t.messages {
		if existing.ID == m.ID {
			return existing, false
		}
	}

	content := strings.TrimSpace(m.Content)
	if content != "" {
		start := len(t.messages) - recentScan
		if start < 0 {
			start = 0
		}
		for _, recent := range t.messages[start:] {
			if recent.Role != m.Role {
				continue
			}
			if now.Sub(recent.Timestamp) >= t.window {
				continue
			}
			if strings.TrimSpace(recent.Content) == content {
				return recent, false
			}
		}
	}

	t.messages = append(t.messages, m)
	t.rebuildSnapshot()
	return m, true
}

// NewGroupContainer appends an empty assistant group container and returns it.
func (t *Timeline) NewGroupContainer() Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Responses: []ProviderResponse{},
		Timestamp: t.now(),
	}
	t.messages = append(t.messages, m)
	t.rebuildSnapshot()
	return m
}

// SetResponses replaces a group container's responses with the given
// aggregator snapshot.
func (t *Timeline) SetResponses(id string, responses []ProviderResponse) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i].Responses = responses
			t.rebuildSnapshot()
			return true
		}
	}
	return false
}

// SetContent replaces a message's content, used while a single-provider
// response streams in. Content only ever grows.
func (t *Timeline) SetContent(id, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.messages {
		if t.messages[i].ID == id {
			if len(content) >= len(t.messages[i].Content) {
				t.messages[i].Content = content
				t.rebuildSnapshot()
			}
			return true
		}
	}
	return false
}

// Messages returns the current history snapshot. A new slice is produced on
// each mutation; treat the result as read-only.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// Len returns the number of messages in the timeline.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Clear resets the full history.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.snapshot = []Message{}
}

func (t *Timeline) rebuildSnapshot() {
	snap := make([]Message, len(t.messages))
	copy(snap, t.messages)
	t.snapshot = snap
}
