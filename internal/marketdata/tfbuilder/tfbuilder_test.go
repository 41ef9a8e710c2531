package tfbuilder

import (
	"errors"
	"testing"
	"time"

	"trading-signalv1/internal/model"
)

var open = time.Date(2026, 3, 2, 9, 15, 0, 0, time.FixedZone("IST", 5*3600+1800))

// minute creates a 1m candle at open+m minutes.
func minute(m int, o, h, l, c, v float64) model.Candle {
	return model.Candle{TS: open.Add(time.Duration(m) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
}

func flat(m int, p float64) model.Candle { return minute(m, p, p+1, p-1, p, 10) }

func TestBuilder_5mResampling(t *testing.T) {
	b := New(model.TF1m, []model.Timeframe{model.TF5m}, 0)
	var closed []model.Candle
	b.OnClosed = func(tf model.Timeframe, c model.Candle) { closed = append(closed, c) }

	feed := []model.Candle{
		minute(0, 100, 102, 99, 101, 10),
		minute(1, 101, 105, 100, 104, 20),
		minute(2, 104, 104, 98, 99, 30),
		minute(3, 99, 101, 97, 100, 40),
	}
	for _, c := range feed {
		if err := b.Add(c); err != nil {
			t.Fatal(err)
		}
	}
	if b.Series(model.TF5m).Len() != 0 {
		t.Fatal("bucket closed before its last minute")
	}
	f, ok := b.Forming(model.TF5m)
	if !ok || f.LastClose() != 100 || f.Count() != 4 {
		t.Fatalf("forming=%+v ok=%v", f, ok)
	}

	if err := b.Add(minute(4, 100, 103, 100, 102, 50)); err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 {
		t.Fatalf("closed=%d, want 1", len(closed))
	}
	got := closed[0]
	if !got.TS.Equal(open) || got.Open != 100 || got.High != 105 || got.Low != 97 || got.Close != 102 || got.Volume != 150 {
		t.Errorf("closed=%+v", got)
	}
	if _, ok := b.Forming(model.TF5m); ok {
		t.Error("no forming candle expected right after completion")
	}
}

func TestBuilder_MultipleTFs(t *testing.T) {
	b := New(model.TF1m, []model.Timeframe{model.TF5m, model.TF15m}, 0)
	for m := 0; m < 31; m++ {
		if err := b.Add(flat(m, 100+float64(m))); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.Series(model.TF5m).Len(); n != 6 {
		t.Errorf("5m closed=%d, want 6", n)
	}
	if n := b.Series(model.TF15m).Len(); n != 2 {
		t.Errorf("15m closed=%d, want 2", n)
	}
	c := b.Series(model.TF15m).At(1)
	if !c.TS.Equal(open.Add(15*time.Minute)) || c.Open != 115 || c.Close != 129 || c.Volume != 150 {
		t.Errorf("second 15m=%+v", c)
	}
	if f, ok := b.Forming(model.TF15m); !ok || f.Count() != 1 {
		t.Errorf("15m forming count=%d ok=%v", f.Count(), ok)
	}
}

func TestBuilder_GapClosesOnNextBucket(t *testing.T) {
	b := New(model.TF1m, []model.Timeframe{model.TF5m}, 0)
	for _, m := range []int{0, 1, 2} {
		_ = b.Add(flat(m, 100))
	}
	// minutes 3 and 4 missing; minute 5 belongs to the next bucket
	if err := b.Add(flat(5, 101)); err != nil {
		t.Fatal(err)
	}
	if b.Series(model.TF5m).Len() != 1 {
		t.Fatalf("gap bucket not closed by next bucket")
	}
	if got := b.Series(model.TF5m).At(0).Volume; got != 30 {
		t.Errorf("volume=%v, want 30", got)
	}
}

func TestBuilder_AdvanceWaitsForSettle(t *testing.T) {
	b := New(model.TF1m, []model.Timeframe{model.TF5m}, 0)
	for _, m := range []int{0, 1, 2} {
		_ = b.Add(flat(m, 100))
	}
	end := open.Add(5 * time.Minute)
	if n := b.Advance(end); n != 0 {
		t.Errorf("froze at bucket end despite settle delay")
	}
	if n := b.Advance(end.Add(DefaultSettle)); n != 1 {
		t.Errorf("Advance after settle froze %d, want 1", n)
	}
	if b.Series(model.TF5m).Len() != 1 {
		t.Error("series not updated")
	}
}

func TestBuilder_RejectsLateCandles(t *testing.T) {
	b := New(model.TF1m, []model.Timeframe{model.TF5m, model.TF15m}, 0)
	for m := 0; m < 7; m++ {
		_ = b.Add(flat(m, 100))
	}
	cases := []model.Candle{flat(6, 100), flat(3, 100)}
	for _, c := range cases {
		err := b.Add(c)
		var ice *model.InvalidCandleError
		if !errors.As(err, &ice) {
			t.Errorf("%s: expected InvalidCandleError, got %v", c.TS.Format("15:04"), err)
		}
	}
	if f, _ := b.Forming(model.TF15m); f.Count() != 7 {
		t.Errorf("15m forming mutated by rejected candle: count=%d", f.Count())
	}
}

func TestBuilder_KeepLimitsSeries(t *testing.T) {
	b := New(model.TF1m, []model.Timeframe{model.TF5m}, 3)
	for m := 0; m < 30; m++ {
		_ = b.Add(flat(m, 100))
	}
	if n := b.Series(model.TF5m).Len(); n != 3 {
		t.Errorf("len=%d, want 3", n)
	}
	b.Reset()
	if b.Series(model.TF5m).Len() != 0 {
		t.Error("Reset did not clear")
	}
}
