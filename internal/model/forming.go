package model

import "time"

// FormingCandle is a bar whose bucket is still open. It is deliberately a
// separate type from Candle so a forming bar cannot be appended to a Series
// or handed to the signal engine without an explicit Freeze.
type FormingCandle struct {
	TF     Timeframe
	TS     time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
	count  int
}

// NewForming starts a forming bucket from its first constituent bar.
func NewForming(tf Timeframe, bucket time.Time, c Candle) *FormingCandle {
	return &FormingCandle{
		TF:     tf,
		TS:     bucket,
		open:   c.Open,
		high:   c.High,
		low:    c.Low,
		close:  c.Close,
		volume: c.Volume,
		count:  1,
	}
}

// Merge folds a later constituent bar into the bucket.
func (f *FormingCandle) Merge(c Candle) {
	if c.High > f.high {
		f.high = c.High
	}
	if c.Low < f.low {
		f.low = c.Low
	}
	f.close = c.Close
	f.volume += c.Volume
	f.count++
}

// End is the exclusive end of the bucket.
func (f *FormingCandle) End() time.Time { return f.TS.Add(f.TF.Duration()) }

// LastClose is the live close of the forming bar.
func (f *FormingCandle) LastClose() float64 { return f.close }

// Count is the number of constituent bars merged so far.
func (f *FormingCandle) Count() int { return f.count }

// Freeze returns the closed Candle for this bucket.
func (f *FormingCandle) Freeze() Candle {
	return Candle{
		TS:     f.TS,
		Open:   f.open,
		High:   f.high,
		Low:    f.low,
		Close:  f.close,
		Volume: f.volume,
	}
}
