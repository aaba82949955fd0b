// internal/status/tracker.go
package status

import "sync"

// Phase is the tracker's display state.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseThinking
	PhaseResponding
)

func (p Phase) String() string {
	switch p {
	case PhaseThinking:
		return "thinking"
	case PhaseResponding:
		return "responding"
	default:
		return "waiting"
	}
}

// Tracker follows signaler events through the
// waiting -> thinking -> responding -> ... -> waiting state machine and
// derives a progress fraction for status UI.
type Tracker struct {
	mu       sync.Mutex
	phase    Phase
	provider string
	name     string
	index    int
	total    int
}

// NewTracker creates a tracker subscribed to the given signaler.
func NewTracker(s *Signaler) *Tracker {
	t := &Tracker{}
	s.Subscribe(t.Handle)
	return t
}

// Handle applies one lifecycle event.
func (t *Tracker) Handle(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case KindThinking:
		t.phase = PhaseThinking
		t.provider = ev.Provider
		t.name = ev.Name
		t.index = ev.Index
		t.total = ev.Total
	case KindProviderStart:
		t.phase = PhaseResponding
		t.provider = ev.Provider
		t.name = ev.Name
		t.index = ev.Index
		t.total = ev.Total
	case KindProviderEnd:
		// Keep current state until the next provider starts thinking
		// or the turn completes.
	case KindAllComplete:
		t.phase = PhaseWaiting
		t.provider = ""
		t.name = ""
		t.index = 0
		t.total = 0
	}
}

// Phase returns the current display phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Current returns the active provider's display name, position, and total.
func (t *Tracker) Current() (name string, index, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name, t.index, t.total
}

// Progress returns the turn's progress fraction in [0, 1]. A responding
// provider counts as half done.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total == 0 {
		return 0
	}
	half := 0.0
	if t.phase == PhaseResponding {
		half = 0.5
	}
	return (float64(t.index) + half) / float64(t.total)
}
