// Package hub fans active-set changes out to WebSocket subscribers.
//
// Every subscriber gets a bounded send queue. The store's event feed is
// enqueued without blocking; a subscriber whose queue is full is
// disconnected rather than allowed to stall the rest.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
)

// Frame is the wire envelope for every server-to-client message.
type Frame struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Frame types.
const (
	FrameConnectionAck = "connection_ack"
	FrameBulk          = "bulk"
	FrameNew           = "new"
	FrameUpdate        = "update"
	FrameRemove        = "remove"
	FrameSystemStatus  = "system_status"
	FramePong          = "pong"
	FrameError         = "error"
)

const (
	sendBuffer     = 256
	pingInterval   = 45 * time.Second
	pongWait       = 30 * time.Second
	writeWait      = 10 * time.Second
	statusInterval = 60 * time.Second

	// shutdownDrain bounds how long a closing subscriber gets to take
	// delivery of its queued frames.
	shutdownDrain = 5 * time.Second
)

// StatusFunc supplies the payload for periodic system_status frames.
type StatusFunc func() any

// Hub owns the subscriber set and the store event feed.
type Hub struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	store    *store.Store
	statusFn StatusFunc
	upgrader websocket.Upgrader

	nextID atomic.Uint64

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New builds a Hub over the given store. statusFn may be nil to disable
// periodic status frames.
func New(logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, st *store.Store, statusFn StatusFunc) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Hub{
		logger:   logger.With("component", "hub"),
		metrics:  metrics,
		clock:    clock,
		store:    st,
		statusFn: statusFn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary dashboard origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	st.Subscribe(h.fanOut)
	return h
}

// Run drives periodic status broadcasts until the context ends, then closes
// every subscriber.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.Chan():
			if h.statusFn != nil {
				h.BroadcastStatus(h.statusFn())
			}
		}
	}
}

// SubscriberCount reports the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastStatus pushes a system_status frame to every subscriber.
func (h *Hub) BroadcastStatus(data any) {
	frame := h.newFrame(FrameSystemStatus, data)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, outbound{frame: frame})
	}
}

// ServeWS upgrades the request and runs the subscriber until it leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan outbound, sendBuffer),
		done:   make(chan struct{}),
		id:     fmt.Sprintf("sub-%d", h.nextID.Add(1)),
		remote: r.RemoteAddr,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.Subscribers.Set(float64(n))
	h.logger.Info("subscriber connected", "id", c.id, "remote", c.remote, "subscribers", n)

	go c.writePump()
	c.readPump()
}

// fanOut runs as a store listener, under the store lock. Enqueueing never
// blocks; it only marks slow clients for disconnect.
func (h *Hub) fanOut(ev store.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, outbound{event: &ev})
	}
}

// enqueueLocked delivers to one client or disconnects it on overflow.
func (h *Hub) enqueueLocked(c *client, out outbound) {
	h.metrics.BroadcastQueueDepth.Observe(float64(len(c.send)))
	select {
	case c.send <- out:
	default:
		h.metrics.SlowConsumerDisconnects.Inc()
		h.logger.Warn("disconnecting slow consumer", "id", c.id, "remote", c.remote)
		h.dropLocked(c)
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)
	h.metrics.Subscribers.Set(float64(len(h.clients)))
}

// closeAll notifies every subscriber that the service is going away, then
// releases them. Each write pump drains its queue, the notice included,
// before sending the close frame.
func (h *Hub) closeAll() {
	frame := h.newFrame(FrameSystemStatus, map[string]string{"status": "shutting_down"})
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, outbound{frame: frame})
		h.dropLocked(c)
	}
}

func (h *Hub) newFrame(typ string, data any) *Frame {
	return &Frame{Type: typ, Data: data, Timestamp: h.clock.Now().UTC()}
}

// bulkPayload carries the initial snapshot.
type bulkPayload struct {
	Alerts []domain.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// ackPayload greets a new subscriber.
type ackPayload struct {
	SubscriberID string    `json:"subscriber_id"`
	ServerTime   time.Time `json:"server_time"`
	AlertCount   int       `json:"alert_count"`
}

// removePayload announces an alert leaving the active set.
type removePayload struct {
	ProductID string       `json:"product_id"`
	Reason    string       `json:"reason"`
	Alert     domain.Alert `json:"alert"`
}

// errorPayload reports a rejected inbound message.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
