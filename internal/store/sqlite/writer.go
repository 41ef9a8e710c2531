package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
	Logger zerolog.Logger

	// OnCommit, if set, observes the latency of every write transaction.
	OnCommit func(time.Duration)
}

// Writer is the single-connection SQLite writer for the 1m candle archive
// and the decision journal. It implements model.CandleArchive and
// model.DecisionSink.
type Writer struct {
	db       *sql.DB
	log      zerolog.Logger
	onCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	l := cfg.Logger.With().Str("component", "sqlite").Logger()
	l.Info().Str("path", cfg.DBPath).Msg("opened database")
	return &Writer{db: db, log: l, onCommit: cfg.OnCommit}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles_1m (
			token      TEXT    NOT NULL,
			exchange   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (exchange, token, ts)
		);

		CREATE TABLE IF NOT EXISTS decisions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			token        TEXT    NOT NULL,
			exchange     TEXT    NOT NULL,
			bar_id       INTEGER NOT NULL,
			ts           INTEGER NOT NULL,
			action       TEXT    NOT NULL,
			bias         TEXT    NOT NULL,
			reason       TEXT,
			failed_check TEXT,
			rsi          REAL,
			vwap         REAL,
			tolerance    REAL,
			close        REAL,
			trace_id     TEXT,
			data         TEXT    NOT NULL,
			created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_inst ON decisions(exchange, token, id);
		CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action);
	`)
	return err
}

// WriteCandles upserts 1m candles in a single transaction.
func (w *Writer) WriteCandles(inst model.Instrument, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles_1m (token, exchange, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare candles: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(inst.Token, inst.Exchange, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle %d: %w", c.TS.Unix(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit candles: %w", err)
	}
	w.observe(start)
	w.log.Debug().Int("n", len(candles)).Dur("took", time.Since(start)).Msg("committed candles")
	return nil
}

// ReadCandles returns archived 1m candles with from <= TS <= to, oldest first.
func (w *Writer) ReadCandles(inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	return readCandles(w.db, inst, from, to)
}

// LastCandleTS returns the newest archived candle time, or the zero time.
func (w *Writer) LastCandleTS(inst model.Instrument) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles_1m WHERE exchange = ? AND token = ?`,
		inst.Exchange, inst.Token,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// RecordDecision appends a decision to the journal with its full diagnostics.
func (w *Writer) RecordDecision(d model.Decision) error {
	start := time.Now()
	_, err := w.db.Exec(`
		INSERT INTO decisions (token, exchange, bar_id, ts, action, bias, reason, failed_check,
			rsi, vwap, tolerance, close, trace_id, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.Token, d.Exchange, int64(d.BarID), d.TS.Unix(), d.Action.String(), d.Bias.String(),
		string(d.Reason), d.FailedCheck, nullable(d.RSI), nullable(d.VWAP), d.Tolerance, d.Close,
		d.TraceID, string(d.JSON()),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert decision: %w", err)
	}
	w.observe(start)
	return nil
}

// Name implements model.DecisionSink.
func (w *Writer) Name() string { return "sqlite" }

// Publish implements model.DecisionSink by journaling every decision.
func (w *Writer) Publish(_ context.Context, d model.Decision) error {
	return w.RecordDecision(d)
}

func (w *Writer) observe(start time.Time) {
	if w.onCommit != nil {
		w.onCommit(time.Since(start))
	}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func nullable(v model.Value) sql.NullFloat64 {
	f, ok := v.Get()
	return sql.NullFloat64{Float64: f, Valid: ok}
}
