package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendQueue  = 256
)

// Client is a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan frame
	hub  *Hub
}

func newClient(conn *websocket.Conn, h *Hub) *Client {
	return &Client{conn: conn, send: make(chan frame, sendQueue), hub: h}
}

// enqueue queues f without blocking; false means the queue was full.
// Callers hold the hub lock.
func (c *Client) enqueue(f frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Coalesce queued frames into one message, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(f.data)
			c.observe(f)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next.data)
				c.observe(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) observe(f frame) {
	if !f.queued.IsZero() && c.hub.Latency != nil {
		c.hub.Latency.Record(time.Since(f.queued))
	}
}

// readPump handles pings and replay requests until the peer goes away.
//
//	{"ping": <client ms>}            -> {"type":"pong", ...}
//	{"type":"REPLAY", "since": <n>}  -> buffered decisions after n
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Type  string `json:"type"`
			Ping  int64  `json:"ping"`
			Since int64  `json:"since"`
		}
		if json.Unmarshal(msg, &req) != nil {
			c.sendError("invalid message")
			continue
		}
		switch {
		case req.Type == "REPLAY":
			c.hub.replaySince(c, req.Since)
		case req.Ping > 0:
			data, _ := json.Marshal(map[string]int64{"ping": req.Ping, "server_ts": time.Now().UnixMilli()})
			c.sendDirect(Envelope{Type: "pong", TS: time.Now(), Data: data})
		default:
			c.sendError("unknown message type " + req.Type)
		}
	}
}

func (c *Client) sendError(msg string) {
	data, _ := json.Marshal(map[string]string{"message": msg})
	c.sendDirect(Envelope{Type: "error", TS: time.Now(), Data: data})
}

// sendDirect queues a reply to this client only.
func (c *Client) sendDirect(env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.enqueue(frame{data: b})
	}
}
