// internal/typewriter/scheduler.go
// Incremental reveal of already-known final text, one character per tick.
// This is presentation pacing only, not a streaming-ingestion mechanism.
package typewriter

import (
	"sync"
	"time"
)

// DefaultTick is the reveal cadence used when a job does not specify one.
const DefaultTick = 30 * time.Millisecond

// Scheduler runs independent reveal jobs keyed by target ID. Reveal length
// is counted in runes, never bytes, so multi-byte content is not split
// mid-character.
//
// Callbacks run on timer goroutines with the scheduler lock held: they must
// not call back into the Scheduler.
type Scheduler struct {
	mu       sync.Mutex
	tick     time.Duration
	onUpdate func(id, prefix string)
	onDone   func(id string)
	jobs     map[string]*job
}

type job struct {
	id    string
	runes []rune
	index int
	tick  time.Duration
	timer *time.Timer
}

func NewScheduler(tick time.Duration, onUpdate func(id, prefix string), onDone func(id string)) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if onUpdate == nil {
		onUpdate = func(string, string) {}
	}
	if onDone == nil {
		onDone = func(string) {}
	}
	return &Scheduler{
		tick:     tick,
		onUpdate: onUpdate,
		onDone:   onDone,
		jobs:     make(map[string]*job),
	}
}

// Start begins revealing text for the target after delay, one rune every
// tick (0 means the scheduler default). The update callback receives the
// progressively longer prefix after every tick; the done callback fires
// exactly once when the full text is revealed. Starting a target that
// already has a job cancels the prior job first.
func (s *Scheduler) Start(id, text string, tick, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.jobs[id]; ok {
		prev.timer.Stop()
		delete(s.jobs, id)
	}

	if tick <= 0 {
		tick = s.tick
	}
	if delay < 0 {
		delay = 0
	}

	j := &job{
		id:    id,
		runes: []rune(text),
		tick:  tick,
	}
	s.jobs[id] = j
	j.timer = time.AfterFunc(delay+tick, func() { s.fire(j) })
}

func (s *Scheduler) fire(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancelled or restarted while this tick was in flight.
	if s.jobs[j.id] != j {
		return
	}

	if j.index < len(j.runes) {
		j.index++
		s.onUpdate(j.id, string(j.runes[:j.index]))
	}

	if j.index >= len(j.runes) {
		delete(s.jobs, j.id)
		s.onDone(j.id)
		return
	}

	j.timer.Reset(j.tick)
}

// Cancel stops any in-flight reveal for the target. After Cancel returns,
// no further callbacks fire for that target.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.timer.Stop()
		delete(s.jobs, id)
	}
}

// CancelAll stops every active job. Must be called when the history is
// cleared so no timer mutates a removed target.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, id)
	}
}

// Active reports whether the target has an in-flight reveal.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}
