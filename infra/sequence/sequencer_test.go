package sequence

import (
	"sync"
	"testing"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(5)
	if s.Next() != 6 || s.Next() != 7 {
		t.Fatal("ids not consecutive")
	}
}

func TestNextConcurrentUnique(t *testing.T) {
	s := New(0)
	seen := make([]uint64, 4000)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				seen[w*1000+i] = s.Next()
			}
		}(w)
	}
	wg.Wait()
	got := map[uint64]bool{}
	for _, id := range seen {
		if got[id] {
			t.Fatalf("duplicate id %d", id)
		}
		got[id] = true
	}
}
