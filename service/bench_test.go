package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"smr/infra/tracker"
)

func TestRunEveryBackend(t *testing.T) {
	for _, name := range tracker.Names() {
		res, err := Run(context.Background(), Workload{
			Tracker:  name,
			Config:   tracker.Config{Workers: 2, EpochFreq: 4, EmptyFreq: 8},
			Mix:      "write",
			KeyRange: 256,
			Duration: 50 * time.Millisecond,
			Seed:     1,
		})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res.Ops == 0 {
			t.Errorf("%s: no operations ran", name)
		}
		if res.Violations != 0 {
			t.Errorf("%s: %d violations", name, res.Violations)
		}
		if res.Tracker != name || res.Workers != 2 {
			t.Errorf("%s: result = %+v", name, res)
		}
	}
}

func TestRunMixes(t *testing.T) {
	for _, mix := range []string{"read", "insert"} {
		res, err := Run(context.Background(), Workload{
			Tracker:  "WFR",
			Config:   tracker.Config{Workers: 2},
			Mix:      mix,
			KeyRange: 64,
			Duration: 20 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("%s: %v", mix, err)
		}
		if res.FinalSize > 64 {
			t.Errorf("%s: size %d exceeds key range", mix, res.FinalSize)
		}
	}
}

func TestRunRejectsBadWorkload(t *testing.T) {
	_, err := Run(context.Background(), Workload{Tracker: "WFR", Mix: "scan", KeyRange: 8, Duration: time.Millisecond})
	if !errors.Is(err, ErrUnknownMix) {
		t.Errorf("err = %v, want ErrUnknownMix", err)
	}
	_, err = Run(context.Background(), Workload{Tracker: "EBR", Mix: "read", KeyRange: 8, Duration: time.Millisecond})
	if !errors.Is(err, tracker.ErrUnknownBackend) {
		t.Errorf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestResultFields(t *testing.T) {
	f := Result{Tracker: "HR", Ops: 10, Violations: 1}.Fields()
	if f["tracker"] != "HR" || f["ops"] != float64(10) || f["violations"] != float64(1) {
		t.Fatalf("fields = %v", f)
	}
}

func BenchmarkRun(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Run(context.Background(), Workload{
			Tracker:  "WFR",
			Config:   tracker.Config{Workers: 4},
			Mix:      "write",
			KeyRange: 1024,
			Duration: 10 * time.Millisecond,
		})
	}
}
