package model

import (
	"fmt"
	"time"
)

// Timeframe is a bar width in seconds.
type Timeframe int

const (
	TF1m  Timeframe = 60
	TF5m  Timeframe = 300
	TF15m Timeframe = 900
)

// Duration returns the bar width.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) * time.Second }

// Bucket returns the start of the bucket containing ts. Buckets are aligned to
// the Unix epoch, which lines up with 09:15 IST for 1m, 5m and 15m bars.
func (tf Timeframe) Bucket(ts time.Time) time.Time {
	sec := int64(tf)
	u := ts.Unix()
	return time.Unix(u-u%sec, 0).In(ts.Location())
}

func (tf Timeframe) String() string {
	switch {
	case tf%3600 == 0:
		return fmt.Sprintf("%dh", tf/3600)
	case tf%60 == 0:
		return fmt.Sprintf("%dm", tf/60)
	default:
		return fmt.Sprintf("%ds", int(tf))
	}
}
