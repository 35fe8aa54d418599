package wsserver

import (
	"sync"
)

// client is one accepted connection. out is drained by the write loop; done
// is closed once the connection must go away.
type client struct {
	id  string
	out chan any

	done     chan struct{}
	doneOnce sync.Once
	reason   string
}

func newClient(id string, queue int) *client {
	return &client{id: id, out: make(chan any, queue), done: make(chan struct{})}
}

func (c *client) kill(reason string) {
	c.doneOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Hub tracks live connections by id and queues frames for them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client

	// onOverflow is called when a client is dropped for a full queue.
	onOverflow func(connID string)
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*client)}
}

// Send queues frame for connID without blocking. A client whose queue is
// full is disconnected; it will resync on reconnect.
func (h *Hub) Send(connID string, frame any) bool {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		c.kill("slow consumer")
		if h.onOverflow != nil {
			h.onOverflow(connID)
		}
		return false
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// closeAll asks every connection to go away.
func (h *Hub) closeAll(reason string) {
	h.mu.RLock()
	list := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		list = append(list, c)
	}
	h.mu.RUnlock()
	for _, c := range list {
		c.kill(reason)
	}
}
