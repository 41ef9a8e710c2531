package sigengine

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"trading-signalv1/config"
	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/gateway"
	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/marketdata/bus"
	"trading-signalv1/internal/marketdata/poller"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/metrics"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/notification"
	"trading-signalv1/internal/strategy"
	kafkastore "trading-signalv1/internal/store/kafka"
	redisstore "trading-signalv1/internal/store/redis"
	sqlitestore "trading-signalv1/internal/store/sqlite"
	"trading-signalv1/pkg/smartconnect"
)

// Service is the live daemon: broker poller, pipeline, sinks and the HTTP
// surface for one instrument.
type Service struct {
	cfg    *config.Config
	inst   model.Instrument
	log    zerolog.Logger
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	gate   *markethours.Gate
	start  time.Time

	sqlWriter *sqlitestore.Writer
	sqlReader *sqlitestore.Reader
	redisDB   *goredis.Client
	redisW    *redisstore.Writer
	redisPub  *redisstore.Publisher
	kafkaPub  *kafkastore.Publisher
	journal   *execution.Journal
	alerter   *notification.SignalAlerter

	hub      *gateway.Hub
	fanout   *bus.FanOut
	paper    *execution.PaperExecutor
	pipeline *Pipeline
	poller   *poller.Poller
}

// NewService connects the stores and wires the pipeline. Redis, Kafka and
// the alert channels are optional; SQLite is required.
func NewService(cfg *config.Config, l zerolog.Logger) (*Service, error) {
	params, err := cfg.StrategyParams()
	if err != nil {
		return nil, err
	}
	LogParams(l, params)
	gateCfg, err := cfg.GateConfig()
	if err != nil {
		return nil, err
	}
	gate, err := markethours.NewGate(gateCfg)
	if err != nil {
		return nil, err
	}
	eng, err := strategy.NewEngine(params, gate, strategy.NewMemoryDeduper())
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:    cfg,
		inst:   cfg.Instrument(),
		log:    l,
		prom:   metrics.NewMetrics(nil),
		health: metrics.NewHealthStatus(true),
		gate:   gate,
		start:  time.Now(),
	}

	// ---- SQLite (required) ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   cfg.SQLitePath,
		Logger:   l,
		OnCommit: func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) },
	})
	if err != nil {
		return nil, err
	}
	svc.health.SetSQLiteOK(true)
	if svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath); err != nil {
		l.Warn().Err(err).Msg("sqlite reader unavailable, /api/decisions/recent serves the in-memory buffer")
	}

	// ---- Redis (optional) ----
	if cfg.RedisEnabled {
		svc.redisDB, err = redisstore.Dial(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			l.Warn().Err(err).Msg("redis unavailable, continuing without it")
		} else {
			svc.redisW = redisstore.NewWriter(svc.redisDB, l)
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				svc.prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					svc.prom.RedisCircuitBreakerTrips.Inc()
				}
				l.Warn().Str("from", from.String()).Str("to", to.String()).Msg("redis circuit breaker")
			}
			svc.redisPub = redisstore.NewPublisher(svc.redisW, cb, 1000)
			svc.health.SetRedisConnected(true)
		}
	}

	// ---- Kafka (optional) ----
	if len(cfg.KafkaBrokers) > 0 {
		svc.kafkaPub, err = kafkastore.NewPublisher(kafkastore.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			svc.Close()
			return nil, err
		}
	}

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier(l)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, l))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL, l))
	}
	svc.alerter = notification.NewSignalAlerter(notifiers)

	// ---- Gateway + fan-out ----
	svc.hub = gateway.NewHub(500, l)
	svc.hub.OnDrop = func() { svc.prom.FanoutDropsTotal.WithLabelValues("ws_client").Inc() }
	svc.fanout = bus.New(256)
	svc.fanout.OnDrop = func(name string, _ model.Decision) {
		svc.prom.FanoutDropsTotal.WithLabelValues(name).Inc()
	}

	// ---- Paper execution ----
	var exec execution.Executor
	if cfg.PaperEnabled {
		svc.journal, err = execution.NewJournal(cfg.SQLitePath, "mtf_pullback", l)
		if err != nil {
			svc.Close()
			return nil, err
		}
		pc := cfg.PaperConfig()
		pc.Instrument = svc.inst
		paper := execution.NewPaperExecutor(pc, gate, svc.journal, l)
		paper.Risk = execution.NewRiskGuard(cfg.RiskLimits(), cfg.InitialEquity)
		paper.OnTrade = func(t execution.Trade) {
			svc.prom.TradesTotal.WithLabelValues(t.Side.String()).Inc()
			svc.prom.RealizedPnL.Add(t.Net)
		}
		svc.paper = paper
		exec = paper
	}

	// ---- Pipeline ----
	bk := book.New(svc.inst, book.Config{Keep: cfg.KeepBars, Settle: cfg.SettleDelay})
	svc.hub.Live = func() book.Status { return bk.Status(params) }
	svc.pipeline = New(bk, eng, Options{
		Sinks:    []model.DecisionSink{svc.sqlWriter},
		FanOut:   svc.fanout,
		Executor: exec,
		Phases:   svc.alerter,
		Metrics:  svc.prom,
		Health:   svc.health,
		Logger:   l,
	})

	// ---- Broker poller ----
	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: cfg.AngelAPIKey, Logger: l})
	sc.SessionExpiryHook = func() { svc.health.SetBrokerConnected(false) }
	src := poller.NewBrokerSource(sc, poller.Credentials{
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	}, l)
	src.OnConnected = svc.health.SetBrokerConnected

	svc.poller = poller.New(poller.Config{Interval: cfg.PollInterval}, src, bk, l)
	svc.poller.Archive = svc.sqlWriter
	svc.poller.Metrics = svc.prom
	svc.poller.Health = svc.health
	svc.poller.Step = func(ctx context.Context, now time.Time) { svc.pipeline.Step(ctx, now) }
	svc.poller.PreOpen = src.Relogin

	return svc, nil
}

// asyncSinks are the consumers fed through the fan-out.
func (svc *Service) asyncSinks() []model.DecisionSink {
	sinks := []model.DecisionSink{svc.hub, svc.alerter}
	if svc.redisPub != nil {
		sinks = append(sinks, svc.redisPub)
	}
	if svc.kafkaPub != nil {
		sinks = append(sinks, svc.kafkaPub)
	}
	return sinks
}

// Run starts the HTTP server and the sink workers, warms the book up and
// polls until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	var workers []*sync.WaitGroup
	for _, s := range svc.asyncSinks() {
		workers = append(workers, svc.fanout.Attach(ctx, s, func(name string, err error) {
			svc.prom.ObserveSinkError(name)
			svc.log.Warn().Err(err).Str("sink", name).Msg("async publish failed")
		}))
	}

	svc.health.StartLivenessChecker(ctx, svc.redisDB, svc.sqlWriter.DB(), 10*time.Second)
	go svc.hub.RunStatus(ctx, svc.gate, svc.start, 5*time.Second)

	mux := http.NewServeMux()
	routes := gateway.Routes{
		Hub:        svc.hub,
		Gate:       svc.gate,
		Instrument: svc.inst,
		Queues:     svc.fanout.ChannelStats,
		Health:     svc.health,
		Metrics:    metrics.Handler(),
		Log:        svc.log,
	}
	if svc.paper != nil {
		routes.Paper = svc.paper
	}
	if svc.sqlReader != nil {
		routes.History = svc.sqlReader
	}
	if svc.redisW != nil {
		routes.LatestFrom = svc.redisW
	}
	gateway.RegisterRoutes(mux, routes)
	srv := &http.Server{Addr: svc.cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		svc.log.Info().Str("addr", svc.cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.log.Error().Err(err).Msg("http server")
		}
	}()

	n, err := svc.poller.Warmup(ctx, time.Now())
	if err != nil {
		svc.log.Warn().Err(err).Int("candles", n).Msg("warm-up incomplete")
	}

	svc.log.Info().
		Str("instrument", svc.inst.Key()).
		Str("status", markethours.StatusString(time.Now())).
		Dur("poll", svc.cfg.PollInterval).
		Msg("signal engine running")

	err = svc.poller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		svc.log.Warn().Err(err).Msg("http shutdown")
	}
	svc.fanout.Close()
	for _, wg := range workers {
		wg.Wait()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the stores. Safe after a failed NewService.
func (svc *Service) Close() {
	if svc.kafkaPub != nil {
		svc.kafkaPub.Close()
	}
	if svc.redisDB != nil {
		svc.redisDB.Close()
	}
	if svc.journal != nil {
		svc.journal.Close()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
}
