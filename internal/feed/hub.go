package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/Telestream/srtStreamer/pkg/protocol"
)

// subscriber holds at most one pending envelope per message type, so a slow
// reader only ever gets the newest frame of each kind.
type subscriber struct {
	mu      sync.Mutex
	pending map[string]protocol.Envelope
	signal  chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func (s *subscriber) offer(env protocol.Envelope) {
	s.mu.Lock()
	s.pending[env.Type] = env
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(s.pending))
	for _, env := range s.pending {
		out = append(out, env)
	}
	clear(s.pending)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Hub fans published envelopes out to websocket subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	last map[string]protocol.Envelope
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]*subscriber),
		last: make(map[string]protocol.Envelope),
	}
}

// Add registers a subscriber under a unique connID. The latest envelope of every type is replayed to it
// first. onFail runs once if send returns an error. The returned function removes
// the subscriber and waits briefly for its writer to stop.
func (h *Hub) Add(connID string, send func(env protocol.Envelope) error, onFail func()) (remove func()) {
	s := &subscriber{
		pending: make(map[string]protocol.Envelope),
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.quit:
				return
			case <-s.signal:
				for _, env := range s.drain() {
					if err := send(env); err != nil {
						if onFail != nil {
							onFail()
						}
						return
					}
				}
			}
		}
	}()

	h.mu.Lock()
	h.subs[connID] = s
	for _, env := range h.last {
		s.offer(env)
	}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.subs[connID] == s {
				delete(h.subs, connID)
			}
			h.mu.Unlock()
			close(s.quit)
			select {
			case <-s.done:
			case <-time.After(1 * time.Second):
			}
		})
	}
}

// Publish records env as the latest of its type and offers it to every subscriber.
func (h *Hub) Publish(env protocol.Envelope) {
	h.mu.Lock()
	h.last[env.Type] = env
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.offer(env)
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Latest returns the last published envelope of a type.
func (h *Hub) Latest(msgType string) (protocol.Envelope, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	env, ok := h.last[msgType]
	return env, ok
}
