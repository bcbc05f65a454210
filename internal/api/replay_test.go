package api

import "testing"

func TestReplayBuffer_After(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.After(6)
	if len(got) != 4 {
		t.Fatalf("After(6): expected 4, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 7; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	if rb.Oldest() != 4 {
		t.Errorf("Oldest() = %d, want 4", rb.Oldest())
	}
	got := rb.After(0)
	if len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("After(0) seqs = %v", seqs(got))
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.After(0); len(got) != 0 {
		t.Fatalf("empty buffer After should return 0, got %d", len(got))
	}
	if rb.Oldest() != 0 {
		t.Errorf("Oldest() = %d on empty buffer", rb.Oldest())
	}
}

func seqs(es []replayEntry) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i] = e.Seq
	}
	return out
}
