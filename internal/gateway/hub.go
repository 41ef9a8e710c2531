// Package gateway serves the decision stream over WebSocket and the small
// REST surface around it (latest decision, recent decisions, session
// state, health and Prometheus metrics).
package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

// Envelope is the frame written to WS clients.
type Envelope struct {
	Type    string          `json:"type"` // decision | status | pong | error
	Seq     int64           `json:"seq,omitempty"`
	TS      time.Time       `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// frame is a queued message plus its enqueue time for latency tracking.
type frame struct {
	data   []byte
	queued time.Time
}

// Hub owns the WS clients and is the "ws" decision sink. Every decision is
// numbered, kept in the replay buffer and fanned out to all clients;
// clients that cannot keep up lose frames rather than slowing the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]model.Decision
	seq     int64

	replay  *ReplayBuffer
	Latency *LatencyTracker
	log     zerolog.Logger

	// OnDrop is called when a frame is dropped for a slow client (optional).
	OnDrop func()
	// Live returns the book's last candle and forming-bar previews for
	// status frames and /api/session (optional).
	Live func() book.Status
}

// NewHub creates a hub that keeps replaySize recent decisions.
func NewHub(replaySize int, l zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		latest:  make(map[string]model.Decision),
		replay:  NewReplayBuffer(replaySize),
		Latency: NewLatencyTracker(10000),
		log:     l.With().Str("component", "gateway").Logger(),
	}
}

func (h *Hub) Name() string { return "ws" }

// Publish records d and broadcasts it. It never blocks on clients.
func (h *Hub) Publish(_ context.Context, d model.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	env, err := json.Marshal(Envelope{Type: "decision", Seq: h.seq, TS: now, Data: data})
	if err != nil {
		return err
	}
	h.latest[d.Key()] = d
	h.replay.Push(h.seq, d, env)
	h.broadcastLocked(frame{data: env, queued: now})
	return nil
}

func (h *Hub) broadcastLocked(f frame) {
	for c := range h.clients {
		if !c.enqueue(f) {
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// Latest returns the last decision published for inst.
func (h *Hub) Latest(inst model.Instrument) (model.Decision, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.latest[inst.Key()]
	return d, ok
}

// Recent returns up to n buffered decisions, newest first.
func (h *Hub) Recent(n int) []model.Decision { return h.replay.Recent(n) }

// Seq is the sequence number of the last published decision.
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

// Register attaches an upgraded connection. since >= 0 replays buffered
// decisions after that sequence number; since < 0 sends the latest decision
// per instrument instead.
func (h *Hub) Register(conn *websocket.Conn, since int64) *Client {
	c := newClient(conn, h)

	// Hold the lock while queueing the catch-up so no live frame can
	// overtake it.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	if since >= 0 {
		for _, env := range h.replay.Since(since) {
			c.enqueue(frame{data: env})
		}
	} else {
		for _, d := range h.latest {
			data, _ := json.Marshal(d)
			env, _ := json.Marshal(Envelope{Type: "decision", Seq: h.seq, TS: time.Now(), Initial: true, Data: data})
			c.enqueue(frame{data: env})
		}
	}
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Int64("since", since).Msg("ws client connected")
	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient detaches c and closes its send queue. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.send)
		h.log.Info().Msg("ws client disconnected")
	}
}

// replaySince queues buffered decisions after seq for one client.
func (h *Hub) replaySince(c *Client, seq int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, env := range h.replay.Since(seq) {
		c.enqueue(frame{data: env})
	}
}

// RunStatus sends a status frame (session phase, process stats, delivery
// latency) to every client each interval. Blocks until ctx is cancelled.
func (h *Hub) RunStatus(ctx context.Context, gate *markethours.Gate, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			data, err := json.Marshal(struct {
				Session SessionStatus  `json:"session"`
				System  SystemStats    `json:"system"`
				Latency LatencySummary `json:"latency"`
				Clients int            `json:"clients"`
			}{h.sessionStatus(gate, now), CollectSystemStats(start), h.Latency.Summary(), h.ClientCount()})
			if err != nil {
				continue
			}
			env, _ := json.Marshal(Envelope{Type: "status", TS: now, Data: data})
			h.mu.RLock()
			h.broadcastLocked(frame{data: env})
			h.mu.RUnlock()
		}
	}
}

// parseSince reads the ?since= query value; absent or malformed is -1.
func parseSince(v string) int64 {
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
