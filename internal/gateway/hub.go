// Package gateway exposes the dashboard over HTTP and streams freshly
// computed summaries to WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"portfolio-enginev1/internal/metrics"
)

// SummaryChannel is the envelope channel for "All" summary updates.
const SummaryChannel = "summary"

// ErrInvalidPayload is returned by Publish for data that is not JSON.
var ErrInvalidPayload = errors.New("payload is not valid JSON")

// Hub tracks WebSocket clients and fans summary updates out to them.
// Every update gets a hub-wide sequence number; the last few envelopes are
// kept so a client reconnecting with ?last_seq=N receives what it missed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  *latestEntry
	seq     int64

	replay  *ReplayBuffer
	metrics *metrics.Metrics
	now     func() time.Time
}

type latestEntry struct {
	Channel string
	Data    json.RawMessage
	TS      time.Time
	Seq     int64
}

// NewHub creates a Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(100),
		metrics: m,
		now:     time.Now,
	}
}

// Publish broadcasts a summary payload on SummaryChannel. It lets the Hub
// stand in for the Redis publisher when Redis is disabled.
func (h *Hub) Publish(_ context.Context, payload []byte) error {
	if !json.Valid(payload) {
		return ErrInvalidPayload
	}
	h.broadcast(SummaryChannel, payload)
	return nil
}

// Relay is a redis.Subscriber callback that forwards payloads published by
// any replica.
func (h *Hub) Relay(payload []byte) {
	if err := h.Publish(context.Background(), payload); err != nil {
		log.Printf("[gateway] dropped relayed payload: %v", err)
	}
}

// HandleWSRequest registers conn and starts its pumps. The backlog after
// lastSeq is queued before the client becomes visible to broadcast, so a
// client never sees updates out of order.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	for _, env := range h.backlog(lastSeq) {
		client.send <- env
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.setGauge(count)
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// backlog returns the envelopes a client resuming after lastSeq needs.
// Without lastSeq, when the gap is older than the replay buffer, or when
// lastSeq is ahead of the hub (a sequence from before a restart), the
// client gets the latest value flagged as initial. Caller holds h.mu.
func (h *Hub) backlog(lastSeq int64) [][]byte {
	if h.latest == nil || lastSeq == h.seq {
		return nil
	}
	if lastSeq > h.seq {
		lastSeq = 0
	}
	if lastSeq > 0 && lastSeq+1 >= h.replay.Oldest() {
		entries := h.replay.After(lastSeq)
		out := make([][]byte, len(entries))
		for i, e := range entries {
			out[i] = e.Data
		}
		return out
	}
	env, err := json.Marshal(struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
		TS      string          `json:"ts"`
		Seq     int64           `json:"seq"`
		Initial bool            `json:"initial"`
	}{h.latest.Channel, h.latest.Data, h.latest.TS.Format(time.RFC3339Nano), h.latest.Seq, true})
	if err != nil {
		return nil
	}
	return [][]byte{env}
}

// RemoveClient unregisters c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.setGauge(count)
}

// Missed returns buffered envelopes with seq in [from, to].
func (h *Hub) Missed(from, to int64) []json.RawMessage {
	entries := h.replay.Range(from, to)
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// Seq returns the sequence number of the last broadcast.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}
