package ringbuf

import "testing"

func TestRing_BasicPush(t *testing.T) {
	r := New[string](4)

	r.Push("A")
	r.Push("B")

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
	if got, _ := r.Oldest(); got != "A" {
		t.Fatalf("expected oldest A, got %s", got)
	}
	if got, _ := r.Newest(); got != "B" {
		t.Fatalf("expected newest B, got %s", got)
	}
	if r.Full() {
		t.Fatal("ring with 2 of 4 should not be full")
	}
}

func TestRing_Empty(t *testing.T) {
	r := New[int](3)
	if _, ok := r.Oldest(); ok {
		t.Fatal("Oldest on empty ring should return false")
	}
	if _, ok := r.Newest(); ok {
		t.Fatal("Newest on empty ring should return false")
	}
	if len(r.Slice()) != 0 {
		t.Fatal("Slice on empty ring should be empty")
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New[int](2)

	r.Push(1)
	r.Push(2)

	dropped, ok := r.Push(3)
	if !ok || dropped != 1 {
		t.Fatalf("expected to drop 1, got %d ok=%v", dropped, ok)
	}
	if r.Evicted() != 1 {
		t.Fatalf("expected evicted=1, got %d", r.Evicted())
	}
	got := r.Slice()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3], got %v", got)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](5)

	for i := 0; i < 23; i++ {
		r.Push(i)
		if r.Len() > r.Cap() {
			t.Fatalf("push %d: len %d exceeds cap %d", i, r.Len(), r.Cap())
		}
	}
	for i := 0; i < r.Len(); i++ {
		if r.At(i) != 18+i {
			t.Fatalf("At(%d): expected %d, got %d", i, 18+i, r.At(i))
		}
	}

	var seen []int
	r.Do(func(v int) { seen = append(seen, v) })
	if len(seen) != 5 || seen[0] != 18 || seen[4] != 22 {
		t.Fatalf("Do visited %v", seen)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	cases := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {5, 5}, {50, 50},
	}
	for _, tc := range cases {
		if got := New[int](tc.in).Cap(); got != tc.want {
			t.Errorf("New(%d).Cap() = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRing_AtOutOfRangePanics(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.At(1)
}
