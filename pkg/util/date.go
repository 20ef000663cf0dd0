package util

import (
	"math"
	"strconv"
	"time"
)

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// NowEpoch returns the current wall clock as fractional epoch seconds.
func NowEpoch() float64 {
	return EpochSeconds(time.Now())
}

// FromEpoch converts fractional epoch seconds back to a time.Time.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}

// MicrosBetween returns (to - from) in microseconds for epoch-second stamps.
func MicrosBetween(from, to float64) float64 {
	return (to - from) * 1e6
}

// ParseEpoch accepts fractional seconds, or integer milliseconds when the
// value is too large to be seconds.
func ParseEpoch(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	if v > 1e11 { // ms
		v /= 1000
	}
	return v, true
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}
