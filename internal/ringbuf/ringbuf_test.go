package ringbuf

import (
	"testing"
	"time"

	"trading-simv1/internal/model"
)

func tick(price float64) model.PriceTick {
	return model.QuoteTick(time.Unix(0, 0).UTC(), price)
}

func TestRing_AppendSnapshot(t *testing.T) {
	r := New(30)

	for i := 1; i <= 3; i++ {
		r.Append(tick(float64(i)))
	}

	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	snap := r.Snapshot()
	for i, tk := range snap {
		if tk.Close != float64(i+1) {
			t.Fatalf("index %d: expected close=%d, got %v", i, i+1, tk.Close)
		}
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New(MinCapacity)

	total := MinCapacity + 10
	for i := 0; i < total; i++ {
		r.Append(tick(float64(i)))
	}

	if r.Len() != MinCapacity {
		t.Fatalf("expected len=%d, got %d", MinCapacity, r.Len())
	}
	if r.Evicted() != 10 {
		t.Fatalf("expected evicted=10, got %d", r.Evicted())
	}

	closes := r.Closes()
	if closes[0] != 10 {
		t.Fatalf("expected oldest=10, got %v", closes[0])
	}
	for i := 1; i < len(closes); i++ {
		if closes[i] != closes[i-1]+1 {
			t.Fatalf("order broken at %d: %v after %v", i, closes[i], closes[i-1])
		}
	}
	last, ok := r.Last()
	if !ok || last.Close != float64(total-1) {
		t.Fatalf("expected last=%d, got %v ok=%v", total-1, last.Close, ok)
	}
}

func TestRing_WraparoundManyRounds(t *testing.T) {
	r := New(40) // storage 64, logical cap 40

	for i := 0; i < 1000; i++ {
		r.Append(tick(float64(i)))
		if r.Len() > 40 {
			t.Fatalf("len exceeded capacity: %d", r.Len())
		}
	}
	closes := r.Closes()
	if len(closes) != 40 || closes[0] != 960 || closes[39] != 999 {
		t.Fatalf("unexpected window: len=%d first=%v last=%v", len(closes), closes[0], closes[len(closes)-1])
	}
}

func TestRing_SnapshotIsACopy(t *testing.T) {
	r := New(MinCapacity)
	r.Append(tick(1))
	snap := r.Snapshot()
	snap[0].Close = 99

	last, _ := r.Last()
	if last.Close != 1 {
		t.Fatalf("mutating snapshot changed the ring: %v", last.Close)
	}
}

func TestRing_EmptyAndReset(t *testing.T) {
	r := New(10) // raised to MinCapacity
	if r.Cap() != MinCapacity {
		t.Fatalf("expected cap=%d, got %d", MinCapacity, r.Cap())
	}
	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty ring should return false")
	}
	if len(r.Snapshot()) != 0 {
		t.Fatal("empty ring should give empty snapshot")
	}

	r.Append(tick(5))
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("expected len=0 after reset, got %d", r.Len())
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {600, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
