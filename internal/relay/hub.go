// Package relay implements the broadcast relay: every envelope accepted
// from any connected peer is rebroadcast, unmodified, to every currently
// connected peer including the sender. The relay holds no history and never
// inspects envelope content; addressing happens entirely client-side.
package relay

import (
	"log/slog"
	"sync"
)

// peer is one registered connection. Its outbound queue is bounded; when the
// queue is full the peer is dropped instead of stalling the fan-out.
type peer struct {
	id   string
	send chan []byte

	closeOnce sync.Once
}

// closeSend must only run while holding the hub's write lock: broadcasts
// send on p.send under the read lock, and the mutex is what keeps a close
// from interleaving with an in-flight send.
func (p *peer) closeSend() {
	p.closeOnce.Do(func() { close(p.send) })
}

// hub tracks the live peer set and fans envelopes out to it. Per-sender
// ordering holds because each connection's read loop calls broadcast
// sequentially and each receiver drains its queue in order.
type hub struct {
	queueDepth int
	log        *slog.Logger
	metrics    *metrics

	mu    sync.RWMutex
	peers map[string]*peer
}

func newHub(queueDepth int, log *slog.Logger, m *metrics) *hub {
	return &hub{
		queueDepth: queueDepth,
		log:        log,
		metrics:    m,
		peers:      make(map[string]*peer),
	}
}

func (h *hub) register(id string) *peer {
	p := &peer{id: id, send: make(chan []byte, h.queueDepth)}
	h.mu.Lock()
	h.peers[id] = p
	h.mu.Unlock()
	h.metrics.connectionsTotal.Inc()
	h.metrics.connectionsActive.Inc()
	return p
}

// unregister removes the peer and closes its queue. Reports whether the
// peer was still in the set, so racing callers count a drop only once.
func (h *hub) unregister(p *peer) bool {
	h.mu.Lock()
	_, present := h.peers[p.id]
	delete(h.peers, p.id)
	p.closeSend()
	h.mu.Unlock()
	if present {
		h.metrics.connectionsActive.Dec()
	}
	return present
}

// broadcast delivers raw to every live peer. A peer whose queue is full is
// dropped from the set; delivery to it is abandoned without retry. The
// non-blocking sends happen under the read lock so they cannot race the
// channel close in unregister; overflowing peers are dropped after the
// iteration, once the read lock is released.
func (h *hub) broadcast(raw []byte) {
	h.metrics.broadcastsTotal.Inc()

	var dropped []*peer
	h.mu.RLock()
	for _, p := range h.peers {
		select {
		case p.send <- raw:
			h.metrics.deliveriesTotal.Inc()
		default:
			dropped = append(dropped, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range dropped {
		if !h.unregister(p) {
			continue
		}
		h.log.Warn("dropping slow consumer", "conn_id", p.id)
		h.metrics.slowDisconnects.Inc()
	}
}

// closeAll drops every peer at once, used on server shutdown.
func (h *hub) closeAll() {
	h.mu.Lock()
	n := len(h.peers)
	for _, p := range h.peers {
		p.closeSend()
	}
	h.peers = make(map[string]*peer)
	h.mu.Unlock()
	h.metrics.connectionsActive.Sub(float64(n))
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}
