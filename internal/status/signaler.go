// internal/status/signaler.go
// Lifecycle signaling for group-chat turns, decoupled from the response
// aggregator: status consumers only need signals, not content buffers.
package status

import "sync"

// Kind identifies a lifecycle event.
type Kind int

const (
	KindThinking Kind = iota
	KindProviderStart
	KindProviderEnd
	KindAllComplete
)

func (k Kind) String() string {
	switch k {
	case KindThinking:
		return "thinking"
	case KindProviderStart:
		return "provider_start"
	case KindProviderEnd:
		return "provider_end"
	case KindAllComplete:
		return "all_complete"
	default:
		return "unknown"
	}
}

// Event is one per-provider lifecycle announcement.
type Event struct {
	Kind     Kind
	Provider string
	Name     string
	Index    int
	Total    int
}

// Signaler is an explicit publish/subscribe channel for group-chat lifecycle
// events. Subscribers are invoked synchronously in subscription order, so
// event ordering is preserved.
type Signaler struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
	order  []int
}

func NewSignaler() *Signaler {
	return &Signaler{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (s *Signaler) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

// Publish delivers an event to all subscribers.
func (s *Signaler) Publish(ev Event) {
	s.mu.Lock()
	handlers := make([]func(Event), 0, len(s.order))
	for _, id := range s.order {
		if fn, ok := s.subs[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Convenience emitters.

func (s *Signaler) Thinking(provider, name string, index, total int) {
	s.Publish(Event{Kind: KindThinking, Provider: provider, Name: name, Index: index, Total: total})
}

func (s *Signaler) ProviderStart(provider, name string, index, total int) {
	s.Publish(Event{Kind: KindProviderStart, Provider: provider, Name: name, Index: index, Total: total})
}

func (s *Signaler) ProviderEnd() {
	s.Publish(Event{Kind: KindProviderEnd})
}

func (s *Signaler) AllComplete() {
	s.Publish(Event{Kind: KindAllComplete})
}
