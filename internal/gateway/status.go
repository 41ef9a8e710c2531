package gateway

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/markethours"
)

// SystemStats is process resource usage sent with each status frame.
type SystemStats struct {
	Load1       float64 `json:"load_1"`
	Load5       float64 `json:"load_5"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
}

// CollectSystemStats samples the Go runtime and, on Linux, the load average.
func CollectSystemStats(start time.Time) SystemStats {
	s := SystemStats{
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
	}
	if raw, err := os.ReadFile("/proc/loadavg"); err == nil {
		fields := strings.Fields(string(raw))
		if len(fields) >= 2 {
			s.Load1, _ = strconv.ParseFloat(fields[0], 64)
			s.Load5, _ = strconv.ParseFloat(fields[1], 64)
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.SysMB = float64(ms.Sys) / 1024 / 1024
	s.GCRuns = ms.NumGC
	return s
}

// SessionStatus describes the trading window at a point in time.
type SessionStatus struct {
	Now          time.Time `json:"now"`
	Session      string    `json:"session"`
	Phase        string    `json:"phase"`
	AllowsEntry  bool      `json:"allows_entry"`
	MustFlatten  bool      `json:"must_flatten"`
	MustHardExit bool      `json:"must_hard_exit"`
	MarketOpen   bool      `json:"market_open"`
	MarketStatus string    `json:"market_status"`

	Live *book.Status `json:"live,omitempty"`
}

// SessionStatusAt evaluates gate at now.
func SessionStatusAt(gate *markethours.Gate, now time.Time) SessionStatus {
	return SessionStatus{
		Now:          now.In(markethours.IST),
		Session:      markethours.SessionKey(now),
		Phase:        gate.Phase(now).String(),
		AllowsEntry:  gate.AllowsEntry(now),
		MustFlatten:  gate.MustFlatten(now),
		MustHardExit: gate.MustHardExit(now),
		MarketOpen:   markethours.IsMarketOpen(now),
		MarketStatus: markethours.StatusString(now),
	}
}

// sessionStatus adds the hub's live book view, if any, to the gate status.
func (h *Hub) sessionStatus(gate *markethours.Gate, now time.Time) SessionStatus {
	st := SessionStatusAt(gate, now)
	if h.Live != nil {
		live := h.Live()
		st.Live = &live
	}
	return st
}
