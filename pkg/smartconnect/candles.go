package smartconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Interval is a SmartAPI historical candle interval.
type Interval string

const (
	OneMinute     Interval = "ONE_MINUTE"
	FiveMinute    Interval = "FIVE_MINUTE"
	FifteenMinute Interval = "FIFTEEN_MINUTE"
)

// MaxSpan is the longest from/to window SmartAPI serves per request for an interval.
func (i Interval) MaxSpan() time.Duration {
	switch i {
	case OneMinute:
		return 30 * 24 * time.Hour
	case FiveMinute, FifteenMinute:
		return 100 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// dateLayout is the request time format, always in IST.
const dateLayout = "2006-01-02 15:04"

var ist = time.FixedZone("IST", 5*3600+30*60)

// CandleRequest selects a historical window.
type CandleRequest struct {
	Exchange    string
	SymbolToken string
	Interval    Interval
	From        time.Time
	To          time.Time
}

// Bar is one historical OHLCV row.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// UnmarshalJSON decodes the ["ts", o, h, l, c, v] row format.
func (b *Bar) UnmarshalJSON(raw []byte) error {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return err
	}
	if len(row) < 6 {
		return fmt.Errorf("candle row has %d fields, want 6", len(row))
	}
	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return fmt.Errorf("candle time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return fmt.Errorf("candle time %q: %w", ts, err)
	}
	b.Time = t
	for i, dst := range []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume} {
		if err := json.Unmarshal(row[i+1], dst); err != nil {
			return fmt.Errorf("candle field %d: %w", i+1, err)
		}
	}
	return nil
}

// GetCandleData fetches historical candles, oldest first. Windows longer
// than the interval's MaxSpan are split into several requests.
func (sc *SmartConnect) GetCandleData(ctx context.Context, req CandleRequest) ([]Bar, error) {
	if !sc.HasSession() {
		return nil, ErrNoSession
	}
	if req.Interval == "" {
		req.Interval = OneMinute
	}
	var out []Bar
	span := req.Interval.MaxSpan()
	for from := req.From; !from.After(req.To); {
		to := from.Add(span)
		if to.After(req.To) {
			to = req.To
		}
		data, err := sc.doRequest(ctx, http.MethodPost, "api.candle.data", map[string]any{
			"exchange":    req.Exchange,
			"symboltoken": req.SymbolToken,
			"interval":    string(req.Interval),
			"fromdate":    from.In(ist).Format(dateLayout),
			"todate":      to.In(ist).Format(dateLayout),
		})
		if err != nil {
			return out, fmt.Errorf("candle data %s..%s: %w", from.In(ist).Format(dateLayout), to.In(ist).Format(dateLayout), err)
		}
		if len(data) > 0 && string(data) != "null" {
			var bars []Bar
			if err := json.Unmarshal(data, &bars); err != nil {
				return out, fmt.Errorf("decode candle data: %w", err)
			}
			out = append(out, bars...)
		}
		if !to.Before(req.To) {
			break
		}
		from = to.Add(time.Minute)
	}
	return out, nil
}
