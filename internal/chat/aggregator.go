// internal/chat/aggregator.go
package chat

import (
	"strings"
	"sync"
	"time"
)

// DefaultDedupeWindow is how close together two identical provider
// responses must arrive to be treated as a double delivery.
const DefaultDedupeWindow = 5 * time.Second

// nearDuplicateSlack is the max length difference for the subset check.
const nearDuplicateSlack = 20

type aggEntry struct {
	resp      ProviderResponse
	arrivedAt time.Time
}

// Aggregator accumulates provider responses for the current group turn in
// arrival order, suppressing double deliveries from overlapping event paths.
// Snapshots are copy-on-write: a new slice is produced on each mutation, so
// consumers may compare snapshots by reference.
type Aggregator struct {
	mu       sync.Mutex
	window   time.Duration
	now      func() time.Time
	entries  []aggEntry
	snapshot []ProviderResponse
}

func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Aggregator{
		window:   window,
		now:      time.Now,
		snapshot: []ProviderResponse{},
	}
}

// Ingest normalizes a raw provider payload and adds it to the current turn.
// Returns the snapshot after the operation (unchanged if suppressed).
func (a *Aggregator) Ingest(raw map[string]any) []ProviderResponse {
	return a.Add(Normalize(raw, a.now()))
}

// Add appends a normalized response unless it duplicates an existing entry:
// same provider with identical trimmed content that arrived within the
// dedupe window, or near-identical content (one a subset of the other with a
// small length difference).
func (a *Aggregator) Add(r ProviderResponse) []ProviderResponse {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	content := strings.TrimSpace(r.Content)

	for _, e := range a.entries {
		if e.resp.Provider != r.Provider {
			continue
		}
		if now.Sub(e.arrivedAt) >= a.window {
			continue
		}
		existing := strings.TrimSpace(e.resp.Content)
		if existing == content {
			return a.snapshot
		}
		lengthDiff := len(existing) - len(content)
		if lengthDiff < 0 {
			lengthDiff = -lengthDiff
		}
		if lengthDiff < nearDuplicateSlack &&
			(strings.Contains(existing, content) || strings.Contains(content, existing)) {
			return a.snapshot
		}
	}

	r.Content = content
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	a.entries = append(a.entries, aggEntry{resp: r, arrivedAt: now})
	a.rebuildSnapshot()
	return a.snapshot
}

// Snapshot returns the ordered responses for the current turn. The returned
// slice is stable between mutations and must be treated as read-only.
func (a *Aggregator) Snapshot() []ProviderResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// Len returns the number of responses in the current turn.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Reset clears the current turn. Called when a new user turn begins or
// history is cleared.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	a.snapshot = []ProviderResponse{}
}

func (a *Aggregator) rebuildSnapshot() {
	snap := make([]ProviderResponse, len(a.entries))
	for i, e := range a.entries {
		snap[i] = e.resp
	}
	a.snapshot = snap
}
