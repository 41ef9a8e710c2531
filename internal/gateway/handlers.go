package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/marketdata/bus"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// DecisionHistory serves persisted decisions, newest first.
type DecisionHistory interface {
	RecentDecisions(inst model.Instrument, limit int) ([]model.Decision, error)
}

// LatestStore is a shared latest-decision cache, e.g. Redis.
type LatestStore interface {
	Latest(ctx context.Context, inst model.Instrument) (model.Decision, bool, error)
}

// PaperView is the read side of the paper executor.
type PaperView interface {
	Position() (model.Position, bool)
	Trades() []execution.Trade
	Summary() execution.Summary
	GetFills() []execution.Fill
	RiskStatus() (execution.RiskStatus, bool)
}

// Routes are the dependencies of the HTTP surface. Hub, Gate and
// Instrument are required.
type Routes struct {
	Hub        *Hub
	Gate       *markethours.Gate
	Instrument model.Instrument
	History    DecisionHistory          // falls back to the hub's buffer
	LatestFrom LatestStore              // consulted when the hub has nothing yet
	Paper      PaperView                // /api/paper, 404 when nil
	Queues     func() []bus.ChannelStat // async sink queue levels
	Health     http.Handler
	Metrics    http.Handler
	Now        func() time.Time
	Log        zerolog.Logger
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// RegisterRoutes registers all HTTP routes on mux.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	if rt.Now == nil {
		rt.Now = time.Now
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rt.Log.Warn().Err(err).Msg("ws upgrade failed")
			return
		}
		rt.Hub.Register(conn, parseSince(r.URL.Query().Get("since")))
	})

	mux.HandleFunc("/api/decision/latest", func(w http.ResponseWriter, r *http.Request) {
		if d, ok := rt.Hub.Latest(rt.Instrument); ok {
			writeJSON(w, http.StatusOK, d)
			return
		}
		if rt.LatestFrom != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()
			d, ok, err := rt.LatestFrom.Latest(ctx, rt.Instrument)
			if err != nil {
				rt.Log.Warn().Err(err).Msg("latest decision lookup failed")
			} else if ok {
				writeJSON(w, http.StatusOK, d)
				return
			}
		}
		writeError(w, http.StatusNotFound, "no decision yet")
	})

	mux.HandleFunc("/api/decisions/recent", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, 1000)
		}
		if rt.History != nil {
			ds, err := rt.History.RecentDecisions(rt.Instrument, limit)
			if err != nil {
				rt.Log.Error().Err(err).Msg("recent decisions query failed")
				writeError(w, http.StatusInternalServerError, "query failed")
				return
			}
			writeJSON(w, http.StatusOK, ds)
			return
		}
		writeJSON(w, http.StatusOK, rt.Hub.Recent(limit))
	})

	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Hub.sessionStatus(rt.Gate, rt.Now()))
	})

	mux.HandleFunc("/api/ws/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]any{
			"clients": rt.Hub.ClientCount(),
			"seq":     rt.Hub.Seq(),
			"latency": rt.Hub.Latency.Summary(),
		}
		if rt.Queues != nil {
			stats["sinks"] = rt.Queues()
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("/api/paper", func(w http.ResponseWriter, r *http.Request) {
		if rt.Paper == nil {
			writeError(w, http.StatusNotFound, "paper trading disabled")
			return
		}
		resp := struct {
			Position *model.Position       `json:"position"`
			Summary  execution.Summary     `json:"summary"`
			Trades   []execution.Trade     `json:"trades"`
			Fills    []execution.Fill      `json:"fills"`
			Risk     *execution.RiskStatus `json:"risk,omitempty"`
		}{
			Summary: rt.Paper.Summary(),
			Trades:  rt.Paper.Trades(),
			Fills:   rt.Paper.GetFills(),
		}
		if pos, ok := rt.Paper.Position(); ok {
			resp.Position = &pos
		}
		if rs, ok := rt.Paper.RiskStatus(); ok {
			resp.Risk = &rs
		}
		writeJSON(w, http.StatusOK, resp)
	})

	if rt.Health != nil {
		mux.Handle("/api/v1/health", rt.Health)
	}
	if rt.Metrics != nil {
		mux.Handle("/metrics", rt.Metrics)
	}
}
