package util

import (
	"math"
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestEpochRoundTrip(t *testing.T) {
	at := time.Date(2024, 10, 10, 10, 10, 10, 250_000_000, time.UTC)
	sec := EpochSeconds(at)
	back := FromEpoch(sec)
	if d := back.Sub(at); d > time.Microsecond || d < -time.Microsecond {
		t.Fatalf("round trip drift %v", d)
	}
}

func TestMicrosBetween(t *testing.T) {
	if got := MicrosBetween(100.0, 100.0015); math.Abs(got-1500) > 1e-3 {
		t.Fatalf("expected 1500us, got %v", got)
	}
}

func TestParseEpoch(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1700000000.5", 1700000000.5, true},
		{"1700000000500", 1700000000.5, true},
		{"", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseEpoch(c.in)
		if ok != c.ok || (ok && math.Abs(got-c.want) > 1e-6) {
			t.Fatalf("ParseEpoch(%q) = %v, %v", c.in, got, ok)
		}
	}
}
