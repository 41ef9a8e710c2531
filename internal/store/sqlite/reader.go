package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trading-signalv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for replay and the gateway.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &Reader{db: db}, nil
}

// ReadCandles returns archived 1m candles with from <= TS <= to, oldest first.
func (r *Reader) ReadCandles(inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	return readCandles(r.db, inst, from, to)
}

// RecentDecisions returns up to limit journaled decisions, newest first.
func (r *Reader) RecentDecisions(inst model.Instrument, limit int) ([]model.Decision, error) {
	rows, err := r.db.Query(`
		SELECT data FROM decisions
		WHERE exchange = ? AND token = ?
		ORDER BY id DESC
		LIMIT ?
	`, inst.Exchange, inst.Token, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query decisions: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan decision: %w", err)
		}
		var d model.Decision
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountActions returns journaled decision counts per action for a time range.
func (r *Reader) CountActions(inst model.Instrument, from, to time.Time) (map[model.Action]int, error) {
	rows, err := r.db.Query(`
		SELECT action, COUNT(*) FROM decisions
		WHERE exchange = ? AND token = ? AND ts >= ? AND ts <= ?
		GROUP BY action
	`, inst.Exchange, inst.Token, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Action]int, 3)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("sqlite scan count: %w", err)
		}
		var a model.Action
		if err := a.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		counts[a] = n
	}
	return counts, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func readCandles(db *sql.DB, inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	rows, err := db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM candles_1m
		WHERE exchange = ? AND token = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, inst.Exchange, inst.Token, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_1m: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_1m: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}
