package book

import (
	"testing"

	"OFISignal/internal/domain/models"
)

func TestNewStateIsEmpty(t *testing.T) {
	s := New()
	if s.HasLast() {
		t.Fatalf("fresh state must not have a last tick")
	}
	if _, ok := s.Previous(); ok {
		t.Fatalf("Previous must report no tick before the first apply")
	}
}

func TestApplyTickOverwrites(t *testing.T) {
	s := New()
	s.ApplyTick(models.Tick{Sequence: 1, Price: 101.5, Size: 10})
	s.ApplyTick(models.Tick{Sequence: 2, Price: 99.0, Size: 3})

	if !s.HasLast() {
		t.Fatalf("expected has_last after apply")
	}
	if s.LastPrice() != 99.0 || s.LastSize() != 3 {
		t.Fatalf("unexpected state price=%v size=%d", s.LastPrice(), s.LastSize())
	}
	prev, ok := s.Previous()
	if !ok || prev.Price != 99.0 || prev.Size != 3 {
		t.Fatalf("unexpected previous tick %+v ok=%v", prev, ok)
	}
}
