package memory

import (
	"context"
	"sync"

	"github.com/mamadbah2/restopos/internal/repository"
)

// hub fans change notifications out to subscriptions keyed by topic. Each
// subscription owns one goroutine, so its callbacks never run concurrently.
// Bursts of changes are coalesced: a slow callback sees the latest state, not
// every intermediate one.
type hub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newHub() *hub {
	return &hub{watchers: make(map[string]map[*watcher]struct{})}
}

func (h *hub) subscribe(ctx context.Context, topic string, push func()) repository.CancelFunc {
	w := &watcher{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.watchers[topic] == nil {
		h.watchers[topic] = make(map[*watcher]struct{})
	}
	h.watchers[topic][w] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(w.done)
		defer h.remove(topic, w)

		for {
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			push()

			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case <-w.signal:
			}
		}
	}()

	return func() {
		w.once.Do(func() { close(w.stop) })
		<-w.done
	}
}

func (h *hub) publish(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		for w := range h.watchers[topic] {
			select {
			case w.signal <- struct{}{}:
			default:
			}
		}
	}
}

func (h *hub) remove(topic string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.watchers[topic], w)
	if len(h.watchers[topic]) == 0 {
		delete(h.watchers, topic)
	}
}

func (h *hub) count(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[topic])
}
