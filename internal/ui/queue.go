// internal/ui/queue.go
package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// eventQueue hands messages from background callbacks to the update loop.
// It is unbounded and FIFO: pushes never block the caller (which may hold a
// scheduler or connection lock) and never reorder, so a burst of callbacks
// arrives in the order it was produced.
type eventQueue struct {
	mu   sync.Mutex
	msgs []tea.Msg
	wake chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(msg tea.Msg) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop blocks until a message is available. There is a single consumer, the
// re-armed waitEvent command.
func (q *eventQueue) pop() tea.Msg {
	for {
		q.mu.Lock()
		if len(q.msgs) > 0 {
			msg := q.msgs[0]
			q.msgs = q.msgs[1:]
			q.mu.Unlock()
			return msg
		}
		q.mu.Unlock()
		<-q.wake
	}
}
