package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	DecisionsTotal *prometheus.CounterVec // labels: action
	HoldsTotal     *prometheus.CounterVec // labels: reason
	FailedChecks   *prometheus.CounterVec // labels: check
	EvalDur        prometheus.Histogram
	BiasState      prometheus.Gauge // -1=bearish, 0=neutral, 1=bullish
	RSI            prometheus.Gauge
	Phase          prometheus.Gauge // markethours.Phase ordinal

	// Data layer
	CandlesTotal    *prometheus.CounterVec // labels: tf
	InvalidCandles  prometheus.Counter
	PollDur         prometheus.Histogram
	PollErrors      prometheus.Counter
	SQLiteCommitDur prometheus.Histogram

	// Sinks
	SinkErrors       *prometheus.CounterVec // labels: sink
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Paper execution
	TradesTotal *prometheus.CounterVec // labels: side
	RealizedPnL prometheus.Gauge

	SessionTransitions *prometheus.CounterVec // labels: type=session|flatten|hard_exit
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_decisions_total",
			Help: "Decisions emitted by action",
		}, []string{"action"}),
		HoldsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_holds_total",
			Help: "HOLD decisions by reason",
		}, []string{"reason"}),
		FailedChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_pullback_failed_checks_total",
			Help: "Pullback validations that failed, by first failing check",
		}, []string{"check"}),
		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_evaluation_duration_seconds",
			Help:    "Latency of one pipeline step (input build + evaluation)",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		BiasState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_bias",
			Help: "Last slow-timeframe bias (-1=bearish, 0=neutral, 1=bullish)",
		}),
		RSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_rsi",
			Help: "Last fast-timeframe RSI",
		}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_session_phase",
			Help: "Session phase (0=pre_open, 1=morning, 2=midday, 3=afternoon, 4=flatten, 5=hard_exit, 6=closed)",
		}),

		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_candles_total",
			Help: "Closed candles by timeframe",
		}, []string{"tf"}),
		InvalidCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_invalid_candles_total",
			Help: "Candles rejected by validation",
		}),
		PollDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_poll_duration_seconds",
			Help:    "Broker candle fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_poll_errors_total",
			Help: "Failed broker candle fetches",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: prometheus.DefBuckets,
		}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_sink_errors_total",
			Help: "Decision publish failures by sink",
		}, []string{"sink"}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_fanout_drops_total",
			Help: "Decisions dropped by FanOut bus per subscriber",
		}, []string{"subscriber"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_paper_trades_total",
			Help: "Paper fills by side",
		}, []string{"side"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_paper_realized_pnl",
			Help: "Net realized paper P&L in rupees",
		}),

		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_session_transitions_total",
			Help: "Session transitions (session, flatten, hard_exit)",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.HoldsTotal,
		m.FailedChecks,
		m.EvalDur,
		m.BiasState,
		m.RSI,
		m.Phase,
		m.CandlesTotal,
		m.InvalidCandles,
		m.PollDur,
		m.PollErrors,
		m.SQLiteCommitDur,
		m.SinkErrors,
		m.FanoutDropsTotal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.TradesTotal,
		m.RealizedPnL,
		m.SessionTransitions,
	)

	return m
}

// ObserveDecision records one pipeline step. Safe on a nil receiver.
func (m *Metrics) ObserveDecision(d model.Decision, phase markethours.Phase, took time.Duration) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(d.Action.String()).Inc()
	if d.Reason != model.ReasonNone {
		m.HoldsTotal.WithLabelValues(string(d.Reason)).Inc()
	}
	if d.FailedCheck != "" {
		m.FailedChecks.WithLabelValues(d.FailedCheck).Inc()
	}
	m.EvalDur.Observe(took.Seconds())
	switch d.Bias {
	case model.BiasBullish:
		m.BiasState.Set(1)
	case model.BiasBearish:
		m.BiasState.Set(-1)
	default:
		m.BiasState.Set(0)
	}
	if v, ok := d.RSI.Get(); ok {
		m.RSI.Set(v)
	}
	m.Phase.Set(float64(phase))
}

// ObserveCandle counts a closed candle. Safe on a nil receiver.
func (m *Metrics) ObserveCandle(tf model.Timeframe) {
	if m == nil {
		return
	}
	m.CandlesTotal.WithLabelValues(tf.String()).Inc()
}

// ObserveInvalidCandle counts a rejected candle. Safe on a nil receiver.
func (m *Metrics) ObserveInvalidCandle() {
	if m == nil {
		return
	}
	m.InvalidCandles.Inc()
}

// ObserveSinkError counts a failed publish. Safe on a nil receiver.
func (m *Metrics) ObserveSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerConnected bool      `json:"broker_connected"`
	LastCandleTime  time.Time `json:"last_candle_time"`
	LastDecisionAt  time.Time `json:"last_decision_at"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// requireBroker marks the process degraded while the broker session is down.
	requireBroker bool
}

// NewHealthStatus returns a default health status. Live daemons pass
// requireBroker so a lost broker session reports degraded.
func NewHealthStatus(requireBroker bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		requireBroker: requireBroker,
	}
}

func (h *HealthStatus) SetBrokerConnected(v bool) {
	h.mu.Lock()
	h.BrokerConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastDecisionAt(t time.Time) {
	h.mu.Lock()
	h.LastDecisionAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(checkCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK || (h.requireBroker && !h.BrokerConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		BrokerConnected bool    `json:"broker_connected"`
		LastCandleTime  string  `json:"last_candle_time"`
		CandleAge       string  `json:"candle_age"`
		LastDecisionAt  string  `json:"last_decision_at"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		BrokerConnected: h.BrokerConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		LastDecisionAt:  h.LastDecisionAt.Format(time.RFC3339),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
