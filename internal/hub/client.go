package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
)

const maxInboundBytes = 4096

// outbound is one queued delivery: either a ready frame or a store event
// still to be filtered and framed for this client.
type outbound struct {
	frame *Frame
	event *store.Event
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan outbound
	done   chan struct{}
	id     string
	remote string

	mu        sync.Mutex
	states    map[string]bool
	phenomena map[string]bool
}

// inboundMessage is the only client-to-server shape the hub accepts.
type inboundMessage struct {
	Type      string   `json:"type"`
	States    []string `json:"states,omitempty"`
	Phenomena []string `json:"phenomena,omitempty"`
}

// writePump owns all writes on the connection. It sends the greeting and the
// snapshot first, then replays queued deliveries, discarding store events the
// snapshot already contained.
func (c *client) writePump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	snapshot, seq := c.hub.store.SnapshotWithSeq()
	if err := c.writeFrame(c.hub.newFrame(FrameConnectionAck, ackPayload{
		SubscriberID: c.id,
		ServerTime:   c.hub.clock.Now().UTC(),
		AlertCount:   len(snapshot),
	})); err != nil {
		return
	}
	if err := c.writeFrame(c.hub.newFrame(FrameBulk, c.bulk(snapshot))); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			c.drain(seq)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case out := <-c.send:
			frame := c.frameForOutbound(out, seq)
			if frame == nil {
				continue
			}
			if err := c.writeFrame(frame); err != nil {
				c.hub.drop(c)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.drop(c)
				return
			}
		}
	}
}

// drain flushes already-queued frames, the shutdown notice included, before
// the close handshake. Bounded so a wedged peer cannot stall shutdown.
func (c *client) drain(seq uint64) {
	deadline := time.Now().Add(shutdownDrain)
	for time.Now().Before(deadline) {
		select {
		case out := <-c.send:
			frame := c.frameForOutbound(out, seq)
			if frame == nil {
				continue
			}
			c.conn.SetWriteDeadline(deadline)
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
			c.hub.metrics.FramesSent.WithLabelValues(frame.Type).Inc()
		default:
			return
		}
	}
}

// frameForOutbound resolves a queued delivery, dropping store events the
// initial snapshot already covered.
func (c *client) frameForOutbound(out outbound, seq uint64) *Frame {
	if out.event != nil {
		if out.event.Sequence <= seq {
			return nil
		}
		return c.frameFor(out.event)
	}
	return out.frame
}

// readPump handles inbound messages and liveness. Any read error ends the
// subscription.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.resetReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.resetReadDeadline()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.resetReadDeadline()

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(FrameError, errorPayload{Code: "invalid_json", Message: "message was not valid JSON"})
			continue
		}
		switch msg.Type {
		case "ping":
			c.reply(FramePong, nil)
		case "subscribe":
			c.setFilter(msg.States, msg.Phenomena)
		default:
			c.reply(FrameError, errorPayload{
				Code:    "unsupported",
				Message: fmt.Sprintf("unsupported message type %q", msg.Type),
			})
		}
	}
}

func (c *client) resetReadDeadline() {
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
}

func (c *client) reply(typ string, data any) {
	frame := c.hub.newFrame(typ, data)
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	c.hub.enqueueLocked(c, outbound{frame: frame})
}

func (c *client) writeFrame(f *Frame) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		return err
	}
	c.hub.metrics.FramesSent.WithLabelValues(f.Type).Inc()
	return nil
}

func (c *client) bulk(snapshot []domain.Alert) bulkPayload {
	filtered := make([]domain.Alert, 0, len(snapshot))
	for _, a := range snapshot {
		if c.matches(&a) {
			filtered = append(filtered, a)
		}
	}
	return bulkPayload{Alerts: filtered, Count: len(filtered)}
}

func (c *client) frameFor(ev *store.Event) *Frame {
	if !c.matches(&ev.Alert) {
		return nil
	}
	switch ev.Type {
	case store.EventNew:
		return c.hub.newFrame(FrameNew, ev.Alert)
	case store.EventUpdate:
		return c.hub.newFrame(FrameUpdate, ev.Alert)
	case store.EventRemove:
		return c.hub.newFrame(FrameRemove, removePayload{
			ProductID: ev.Alert.ProductID,
			Reason:    ev.Reason,
			Alert:     ev.Alert,
		})
	}
	return nil
}

func (c *client) setFilter(states, phenomena []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = toSet(states)
	c.phenomena = toSet(phenomena)
}

func (c *client) matches(a *domain.Alert) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) > 0 {
		ok := false
		for st := range c.states {
			if a.TouchesState(st) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(c.phenomena) > 0 && !c.phenomena[a.Phenomenon] {
		return false
	}
	return true
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToUpper(strings.TrimSpace(v))] = true
	}
	return set
}
