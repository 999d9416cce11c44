package notify

import (
	"sync"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

// Hub fans task changes out to subscribed UI consumers (countdown views,
// status badges). Publishing never blocks: a subscriber that cannot keep
// up loses intermediate updates, not the scheduler's time.
type Hub struct {
	mu   sync.Mutex
	subs map[chan core.TaskChange]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan core.TaskChange]struct{})}
}

// Subscribe registers a consumer. The returned cancel func must be called
// to release the subscription.
func (h *Hub) Subscribe() (<-chan core.TaskChange, func()) {
	ch := make(chan core.TaskChange, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish implements core.Publisher.
func (h *Hub) Publish(change core.TaskChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
