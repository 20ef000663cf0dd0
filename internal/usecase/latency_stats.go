package usecase

import (
	"fmt"
	"sort"
	"sync"
)

const defaultLatencyWindow = 1 << 20

// LatencySummary is count, percentiles and mean of one latency series in
// microseconds.
type LatencySummary struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
	Mean  float64 `json:"mean"`
}

func (s LatencySummary) String() string {
	return fmt.Sprintf("count=%d p50=%g p90=%g p99=%g mean=%g", s.Count, s.P50, s.P90, s.P99, s.Mean)
}

// LatencyReport pairs the two series recorded per decision.
type LatencyReport struct {
	RecvToDecisionUs LatencySummary `json:"recv_to_decision_us"`
	SrcToRecvUs      LatencySummary `json:"src_to_recv_us"`
	Total            uint64         `json:"total"`
}

// LatencyStats keeps the most recent window of per-decision latency samples.
// Add is called from the ingestion goroutine; Report may run concurrently.
type LatencyStats struct {
	mu     sync.Mutex
	window int
	dec    []float64
	src    []float64
	next   int
	total  uint64
}

// NewLatencyStats keeps at most window samples per series; window <= 0 uses
// a default of about one million.
func NewLatencyStats(window int) *LatencyStats {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &LatencyStats{window: window}
}

// Add records one decision's recv->decision and src->recv latencies.
func (s *LatencyStats) Add(recvToDecisionUs, srcToRecvUs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if len(s.dec) < s.window {
		s.dec = append(s.dec, recvToDecisionUs)
		s.src = append(s.src, srcToRecvUs)
		return
	}
	s.dec[s.next] = recvToDecisionUs
	s.src[s.next] = srcToRecvUs
	s.next = (s.next + 1) % s.window
}

// Report summarizes the retained window.
func (s *LatencyStats) Report() LatencyReport {
	s.mu.Lock()
	dec := append([]float64(nil), s.dec...)
	src := append([]float64(nil), s.src...)
	total := s.total
	s.mu.Unlock()

	return LatencyReport{
		RecvToDecisionUs: Summarize(dec),
		SrcToRecvUs:      Summarize(src),
		Total:            total,
	}
}

// Summarize sorts v in place. Percentile q is v[int(q*(n-1))].
func Summarize(v []float64) LatencySummary {
	n := len(v)
	if n == 0 {
		return LatencySummary{}
	}
	sort.Float64s(v)
	pick := func(q float64) float64 { return v[int(q*float64(n-1))] }

	var sum float64
	for _, x := range v {
		sum += x
	}
	return LatencySummary{
		Count: n,
		P50:   pick(0.5),
		P90:   pick(0.9),
		P99:   pick(0.99),
		Mean:  sum / float64(n),
	}
}
