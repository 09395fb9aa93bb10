package hub

import (
	"sync"

	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/rs/zerolog"
)

const subscriberBuffer = 64

// Hub fans alert records out to live subscribers such as websocket clients.
// Publish never blocks: a subscriber that falls behind loses records.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan model.AlertRecord]struct{}
	dropped     int64
	closed      bool
	log         zerolog.Logger
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan model.AlertRecord]struct{}),
		log:         log,
	}
}

// Subscribe returns a buffered channel receiving every published record and
// a function that unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan model.AlertRecord, func()) {
	ch := make(chan model.AlertRecord, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subscribers[ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(ch) })
	}
}

// Publish sends rec to all subscribers.
func (h *Hub) Publish(rec model.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			h.dropped++
			h.log.Warn().Int64("total_dropped", h.dropped).Msg("hub_dropped_record_for_slow_consumer")
		}
	}
}

// Dropped returns the total number of records dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes all subscriber channels. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
	h.closed = true
}

func (h *Hub) remove(ch chan model.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}
