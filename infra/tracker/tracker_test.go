package tracker

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"

	"smr/infra/memory"
)

type recordingBackend struct {
	nilTracker
	slots []int
}

func (r *recordingBackend) Read(src *atomic.Uint64, slot, _ int, _ memory.Ref) uint64 {
	r.slots = append(r.slots, slot)
	return src.Load()
}

func (r *recordingBackend) ReserveSlot(_ uint64, slot, _ int, _ memory.Ref) {
	r.slots = append(r.slots, slot)
}

func TestTrackerTransferSwapsSlots(t *testing.T) {
	cfg := Config{Workers: 2, Slots: 3}.withDefaults()
	rb := &recordingBackend{nilTracker: *newNil(newCells(), cfg)}
	tr := newTracker("test", rb, cfg)

	var w atomic.Uint64
	tr.Read(&w, 0, 0, 0)
	tr.Transfer(0, 2, 0)
	tr.Read(&w, 0, 0, 0)
	tr.ReserveSlot(0, 2, 0, 0)
	tr.Read(&w, 0, 1, 0) // renaming is per thread

	want := []int{0, 2, 0, 0}
	if len(rb.slots) != len(want) {
		t.Fatalf("slots = %v, want %v", rb.slots, want)
	}
	for i := range want {
		if rb.slots[i] != want[i] {
			t.Fatalf("slots = %v, want %v", rb.slots, want)
		}
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New("EBR", newCells(), Config{})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestNamesAreRegistered(t *testing.T) {
	want := []string{"HR", "NIL", "RCU", "WFR"}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
		tr, err := New(want[i], newCells(), Config{Workers: 2})
		if err != nil {
			t.Fatalf("New(%s): %v", want[i], err)
		}
		if tr.Name() != want[i] {
			t.Errorf("name = %s, want %s", tr.Name(), want[i])
		}
	}
}

func TestNilNeverFrees(t *testing.T) {
	a := newCells()
	tr, _ := New("NIL", a, Config{Workers: 1, EmptyFreq: 1})

	r1, r2 := tr.Alloc(0), tr.Alloc(0)
	tr.Retire(r1, 0)
	tr.ClearAll(0)
	if a.Header(r1).State() != memory.StateRetired {
		t.Fatal("NIL freed a retired record")
	}
	if tr.RetiredCount(0) != 1 {
		t.Errorf("retired = %d, want 1", tr.RetiredCount(0))
	}

	tr.Reclaim(r2, 0)
	if a.Header(r2).State() != memory.StateFree {
		t.Error("reclaim did not free")
	}
}

func TestRCUReaderBlocksReclaim(t *testing.T) {
	a := newCells()
	tr, _ := New("RCU", a, Config{Workers: 2, EmptyFreq: 1})

	tr.StartOp(1)
	r1 := tr.Alloc(0)
	tr.Retire(r1, 0)
	if a.Header(r1).State() != memory.StateRetired {
		t.Fatal("freed while a reader was active")
	}
	tr.EndOp(1)

	r2 := tr.Alloc(0)
	tr.Retire(r2, 0)
	if a.Header(r1).State() != memory.StateFree || a.Header(r2).State() != memory.StateFree {
		t.Fatal("records not freed after the reader left")
	}
	if tr.RetiredCount(0) != 0 {
		t.Errorf("retired = %d, want 0", tr.RetiredCount(0))
	}
}

func TestRCUOverflowDrains(t *testing.T) {
	a := newCells()
	r := newRCU(a, Config{Workers: 1, EmptyFreq: 1000, RingSize: 2}.withDefaults())

	for i := 0; i < 5; i++ {
		r.Retire(r.Alloc(0), 0)
	}
	if n := len(r.threads[0].overflow); n != 3 {
		t.Fatalf("overflow = %d, want 3", n)
	}
	r.empty(&r.threads[0])
	if r.RetiredCount(0) != 0 || a.InUse() != 0 {
		t.Fatalf("retired = %d in use = %d, want 0 0", r.RetiredCount(0), a.InUse())
	}
}

// swapStress has every worker repeatedly read a random root under
// protection, check the record it reached is alive, and replace it.
func swapStress(t *testing.T, name string, cfg Config) {
	const (
		roots   = 8
		workers = 4
		rounds  = 4000
	)
	a := newCells()
	cfg.Workers = workers
	cfg.Slots = 1
	tr, err := New(name, a, cfg)
	if err != nil {
		t.Fatal(err)
	}

	var slots [roots]atomic.Uint64
	for i := range slots {
		slots[i].Store(pack(tr.Alloc(0)))
	}

	var violations atomic.Int64
	var wg sync.WaitGroup
	for tid := 0; tid < workers; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(tid), 7))
			for i := 0; i < rounds; i++ {
				tr.StartOp(tid)
				root := &slots[rng.IntN(roots)]
				old := tr.Read(root, 0, tid, 0)
				if a.Get(memory.Ref(old>>1)).dead.Load() {
					violations.Add(1)
				}
				n := tr.Alloc(tid)
				a.Get(n).dead.Store(false)
				if root.CompareAndSwap(old, pack(n)) {
					tr.Retire(memory.Ref(old>>1), tid)
				} else {
					tr.Reclaim(n, tid)
				}
				tr.EndOp(tid)
				tr.ClearAll(tid)
			}
		}(tid)
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Fatalf("%s: %d dereferences of freed records", name, v)
	}
	if got, want := a.InUse(), int64(roots)+tr.TotalRetired(); got != want {
		t.Fatalf("%s: in use = %d, want %d", name, got, want)
	}
}

func TestBackendsSwapStress(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			swapStress(t, name, Config{EpochFreq: 4, EmptyFreq: 8})
		})
	}
}

func TestWFRSwapStressSlowPath(t *testing.T) {
	swapStress(t, "WFR", Config{EpochFreq: 1, EmptyFreq: 2, FastPathAttempts: 1})
}
