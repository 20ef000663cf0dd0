package predictor

import "OFISignal/internal/domain/models"

// step is the single-pole update. Each product is rounded to float64 before
// the sum so the compiler cannot fuse it into an FMA on some targets and
// skip a rounding the other execution path performs.
func step(alpha, x, ewma float64) float64 {
	return float64(alpha*x) + float64((1-alpha)*ewma)
}

func classify(ewma, threshold float64) models.Action {
	switch {
	case ewma > threshold:
		return models.ActionBuy
	case ewma < -threshold:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// scan runs one sequence from a zero state and writes one action per input.
// Both the CPU strategy and the device kernel call it.
func scan[T ~int8](in []float64, out []T, alpha, threshold float64) {
	ewma := 0.0
	for i, x := range in {
		ewma = step(alpha, x, ewma)
		out[i] = T(classify(ewma, threshold))
	}
}
