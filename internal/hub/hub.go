// Package hub tracks connected teleop sessions and fans vehicle
// feedback out to them.
package hub

import (
	"sync"

	"github.com/cartlab/go-dbw-bridge/internal/logging"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// BackpressurePolicy decides what happens to a session whose outbound
// buffer is full when a broadcast arrives.
type BackpressurePolicy int

const (
	// PolicyDrop discards the overflowing message; the session stays.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick closes the session instead.
	PolicyKick
)

// Client is one connected teleop session as the hub sees it. The
// session writer drains Out; Closed tells both pumps to wind down.
type Client struct {
	Addr      string
	Out       chan []byte
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewClient wires the channels for one session. buf is the outbound
// queue length; addr shows up in logs only.
func NewClient(buf int, addr string) *Client {
	return &Client{
		Addr:   addr,
		Out:    make(chan []byte, buf),
		Closed: make(chan struct{}),
	}
}

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub is the fanout point between the telemetry reader and the teleop
// sessions. OutBufSize and Policy must be set before the first Add.
type Hub struct {
	OutBufSize int
	Policy     BackpressurePolicy

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func New() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Add registers a session.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	first := len(h.clients) == 0
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetHubClients(n)
	if first {
		logging.L().Info("clients_first_connected")
	}
}

// Remove drops a session and closes it if the disconnect path has not
// already done so. Calling it twice is fine.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetHubClients(n)
	if ok && n == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Broadcast queues msg on every session, resolving full buffers per
// Policy. A kicked session is only closed here; the disconnect path in
// the server does the Remove. Queue depth is sampled on the way
// through.
func (h *Hub) Broadcast(msg []byte) {
	clients := h.Clients()
	metrics.SetBroadcastFanout(len(clients))
	metrics.SetHubClients(len(clients))
	if len(clients) == 0 {
		return
	}
	maxDepth, total := 0, 0
	for _, c := range clients {
		d := len(c.Out)
		if d > maxDepth {
			maxDepth = d
		}
		total += d
		select {
		case c.Out <- msg:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				logging.L().Warn("client_kicked", "remote", c.Addr)
				c.Close()
			} else {
				metrics.IncHubDrop()
			}
		}
	}
	metrics.SetQueueDepth(maxDepth, total/len(clients))
}

// Clients returns the current session set as a fresh slice.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Count reports how many sessions are registered.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
