package memory

import "testing"

func TestRetireRingBasic(t *testing.T) {
	r := NewRetireRing(4) // capacity 4

	if !r.Enqueue(Retired{Ref: 1, Epoch: 3}) || !r.Enqueue(Retired{Ref: 2, Epoch: 5}) {
		t.Fatal("enqueue failed unexpectedly")
	}
	if v, ok := r.Dequeue(); !ok || v.Ref != 1 {
		t.Error("expected first dequeue to be ref 1")
	}
	if v, ok := r.Dequeue(); !ok || v.Ref != 2 {
		t.Error("expected second dequeue to be ref 2")
	}
	if _, ok := r.Dequeue(); ok {
		t.Error("expected empty ring to report nothing")
	}
}

func TestRetireRingFull(t *testing.T) {
	r := NewRetireRing(2)
	r.Enqueue(Retired{Ref: 1})
	r.Enqueue(Retired{Ref: 2})
	if !r.IsFull() {
		t.Fatal("expected full ring")
	}
	if r.Enqueue(Retired{Ref: 3}) {
		t.Fatal("enqueue into full ring succeeded")
	}
}

func TestRetireRingReclaimBefore(t *testing.T) {
	r := NewRetireRing(8)
	for i, e := range []uint64{1, 2, 2, 4, 7} {
		r.Enqueue(Retired{Ref: Ref(i + 1), Epoch: e})
	}

	var freed []Ref
	n := r.ReclaimBefore(4, func(ref Ref) { freed = append(freed, ref) })
	if n != 3 || len(freed) != 3 {
		t.Fatalf("reclaimed %d, want 3", n)
	}
	if freed[0] != 1 || freed[2] != 3 {
		t.Errorf("unexpected order %v", freed)
	}
	if v, ok := r.Dequeue(); !ok || v.Ref != 4 {
		t.Errorf("head after reclaim = %v, want ref 4", v)
	}
}

func TestRetireRingRejectsOddSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non power-of-two size")
		}
	}()
	NewRetireRing(3)
}
