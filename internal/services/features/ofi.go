package features

import "OFISignal/internal/domain/models"

// ComputeOFI returns a one-tick-lookback order flow score: the current size
// signed by the direction of the price change, or 0 when the price is unchanged.
// It is a sign-of-price-change heuristic, not a depth-weighted OFI.
func ComputeOFI(prev, cur models.Tick) float64 {
	switch {
	case cur.Price > prev.Price:
		return float64(cur.Size)
	case cur.Price < prev.Price:
		return -float64(cur.Size)
	default:
		return 0
	}
}
