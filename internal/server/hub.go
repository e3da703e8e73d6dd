package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/josephgoksu/quill/internal/metrics"
)

// client is one Socket.IO connection on the default namespace.
type client struct {
	id   string
	sess *session
}

// taskWatcher is told when a task gains its first follower and when it
// loses its last one.
type taskWatcher interface {
	Watch(taskID string)
	Unwatch(taskID string)
}

// Hub tracks connections and which tasks each one follows. The watcher is
// called under the hub lock so its state always matches the followers.
type Hub struct {
	logger  *slog.Logger
	watcher taskWatcher

	mu      sync.RWMutex
	clients map[*session]*client
	follows map[*client]map[string]struct{}
	subs    map[string]map[*client]struct{}
}

func newHub(logger *slog.Logger, watcher taskWatcher) *Hub {
	return &Hub{
		logger:  logger,
		watcher: watcher,
		clients: make(map[*session]*client),
		follows: make(map[*client]map[string]struct{}),
		subs:    make(map[string]map[*client]struct{}),
	}
}

// add registers the socket of a session. A second connect on the same
// session returns the existing client and false.
func (h *Hub) add(sess *session) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[sess]; ok {
		return c, false
	}
	c := &client{id: uuid.NewString(), sess: sess}
	h.clients[sess] = c
	h.follows[c] = make(map[string]struct{})
	metrics.WebSocketClients.Inc()
	return c, true
}

func (h *Hub) lookup(sess *session) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sess]
	return c, ok
}

// remove drops the client of a session and unwatches the tasks nobody
// follows any more.
func (h *Hub) remove(sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[sess]
	if !ok {
		return
	}
	delete(h.clients, sess)
	tasks := h.follows[c]
	delete(h.follows, c)
	metrics.WebSocketClients.Dec()

	for id := range tasks {
		delete(h.subs[id], c)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
			h.watcher.Unwatch(id)
		}
	}
}

// subscribe adds c to the followers of a task. Repeated subscriptions are
// no-ops. It reports whether c is the task's first follower.
func (h *Hub) subscribe(c *client, taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	tasks, ok := h.follows[c]
	if !ok {
		return false
	}
	tasks[taskID] = struct{}{}
	followers, ok := h.subs[taskID]
	if !ok {
		followers = make(map[*client]struct{})
		h.subs[taskID] = followers
	}
	first := len(followers) == 0
	followers[c] = struct{}{}
	if first {
		h.watcher.Watch(taskID)
	}
	return first
}

// followers counts the clients following a task.
func (h *Hub) followers(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[taskID])
}

// emit queues an event for one client. A client whose buffer is full
// misses it; the next task_update carries the whole tree again.
func (h *Hub) emit(c *client, event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Warn("encode event failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.follows[c]; ok {
		c.sess.send(msg)
	}
}

// broadcast queues an event for every follower of a task.
func (h *Hub) broadcast(taskID, event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Warn("encode event failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[taskID] {
		c.sess.send(msg)
	}
}
