package model

import (
	"fmt"
	"time"
)

// Timeframe is the candle bucket duration for a chart series.
type Timeframe time.Duration

// Supported timeframes.
const (
	TF1m  = Timeframe(time.Minute)
	TF5m  = Timeframe(5 * time.Minute)
	TF15m = Timeframe(15 * time.Minute)
	TF1h  = Timeframe(time.Hour)
	TF4h  = Timeframe(4 * time.Hour)
	TF1d  = Timeframe(24 * time.Hour)
)

// ParseTimeframe parses strings like "1m", "15m", "4h", "1d".
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1m":
		return TF1m, nil
	case "5m":
		return TF5m, nil
	case "15m":
		return TF15m, nil
	case "1h":
		return TF1h, nil
	case "4h":
		return TF4h, nil
	case "1d":
		return TF1d, nil
	}
	return 0, fmt.Errorf("unknown timeframe %q", s)
}

// Duration returns the bucket duration.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) }

// Bucket aligns ts down to the start of its timeframe bucket.
func (tf Timeframe) Bucket(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Duration(tf))
}

// SameBucket reports whether a and b fall into the same bucket.
func (tf Timeframe) SameBucket(a, b time.Time) bool {
	return tf.Bucket(a).Equal(tf.Bucket(b))
}

// String renders the canonical short form ("1m", "1h", ...).
func (tf Timeframe) String() string {
	switch tf {
	case TF1m:
		return "1m"
	case TF5m:
		return "5m"
	case TF15m:
		return "15m"
	case TF1h:
		return "1h"
	case TF4h:
		return "4h"
	case TF1d:
		return "1d"
	}
	return time.Duration(tf).String()
}

// AxisFormat returns the time layout for bottom-axis tick labels.
// Intraday frames show time of day; hourly and above show the date.
func (tf Timeframe) AxisFormat() string {
	if time.Duration(tf) >= time.Hour {
		return "Jan 02"
	}
	return "15:04"
}
