package memory

import "testing"

func TestClockStartsAtOne(t *testing.T) {
	c := NewClock()
	if c.Load() != 1 {
		t.Fatalf("clock = %d, want 1", c.Load())
	}
	if c.Advance() != 2 || c.Load() != 2 {
		t.Fatal("advance did not increment")
	}
}

func TestMinReaderEpoch(t *testing.T) {
	c := NewClock()
	a, b := NewReaderEpoch(), NewReaderEpoch()

	if MinReaderEpoch(a, b) != Inactive {
		t.Fatal("idle readers must report Inactive")
	}

	a.Enter(c)
	c.Advance()
	b.Enter(c)
	if got := MinReaderEpoch(a, b, nil); got != 1 {
		t.Fatalf("min = %d, want 1", got)
	}

	a.Exit()
	if got := MinReaderEpoch(a, b); got != 2 {
		t.Fatalf("min = %d, want 2", got)
	}
}

func TestPoolResetsOnPut(t *testing.T) {
	p := NewPool(func() *payload { return &payload{} }, func(v *payload) { *v = payload{} })
	v := p.Get()
	v.key = 9
	p.Put(v)
	if v.key != 0 {
		t.Fatal("reset hook not applied")
	}
}
