// Package book keeps the last-trade state of a single tick stream.
package book

import "OFISignal/internal/domain/models"

// State holds the most recently observed price and size. It is owned by
// the single ingestion goroutine and is not safe for concurrent mutation.
type State struct {
	lastPrice float64
	lastSize  uint32
	hasLast   bool
}

func New() *State { return &State{} }

// ApplyTick overwrites the retained price and size.
func (s *State) ApplyTick(t models.Tick) {
	s.lastPrice = t.Price
	s.lastSize = t.Size
	s.hasLast = true
}

func (s *State) LastPrice() float64 { return s.lastPrice }
func (s *State) LastSize() uint32   { return s.lastSize }

// HasLast is false until the first tick of the stream has been applied.
func (s *State) HasLast() bool { return s.hasLast }

// Previous rebuilds the previous tick context for the OFI estimator.
// The boolean is false when no tick has been applied yet.
func (s *State) Previous() (models.Tick, bool) {
	if !s.hasLast {
		return models.Tick{}, false
	}
	return models.Tick{Price: s.lastPrice, Size: s.lastSize}, true
}
