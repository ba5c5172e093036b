package service

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"smr/domain/skiplist"
	"smr/infra/tracker"
)

// Mix is the operation distribution, in percent.
type Mix struct {
	Get, Update, Remove int
	// Insert uses Insert instead of Put for the update share.
	Insert bool
}

var mixes = map[string]Mix{
	"write":  {Get: 50, Update: 25, Remove: 25},
	"read":   {Get: 90, Update: 5, Remove: 5},
	"insert": {Get: 50, Update: 25, Remove: 25, Insert: true},
}

// ErrUnknownMix is returned for a workload mix that is not defined.
var ErrUnknownMix = errors.New("service: unknown mix")

type Workload struct {
	Tracker  string
	Config   tracker.Config
	Mix      string
	KeyRange int
	Duration time.Duration
	Seed     uint64
}

type Result struct {
	Tracker     string
	Mix         string
	Workers     int
	Ops         int64
	Elapsed     time.Duration
	Throughput  float64 // ops per second
	AvgRetired  float64
	PeakRetired int64
	Retired     int64 // still unfreed at the end
	InUse       int64
	FinalSize   int
	Violations  int64
}

// Fields flattens the result for encoding.
func (r Result) Fields() map[string]any {
	return map[string]any{
		"tracker":      r.Tracker,
		"mix":          r.Mix,
		"workers":      float64(r.Workers),
		"ops":          float64(r.Ops),
		"elapsed_ms":   float64(r.Elapsed.Milliseconds()),
		"throughput":   r.Throughput,
		"avg_retired":  r.AvgRetired,
		"peak_retired": float64(r.PeakRetired),
		"retired":      float64(r.Retired),
		"in_use":       float64(r.InUse),
		"final_size":   float64(r.FinalSize),
		"violations":   float64(r.Violations),
	}
}

// Run prefills half the key range and lets Config.Workers goroutines
// issue operations until Duration elapses or ctx is done.
func Run(ctx context.Context, w Workload) (Result, error) {
	mix, ok := mixes[w.Mix]
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownMix, "%q", w.Mix)
	}
	if w.KeyRange < 2 {
		return Result{}, errors.Newf("service: key range %d too small", w.KeyRange)
	}
	workers := max(w.Config.Workers, 1)
	w.Config.Workers = workers

	list, err := skiplist.New[int64, int64](w.Tracker, w.Config)
	if err != nil {
		return Result{}, errors.Wrap(err, "service: build list")
	}
	for k := 0; k < w.KeyRange; k += 2 {
		list.Insert(int64(k), int64(k), 0)
	}

	runCtx, cancel := context.WithTimeout(ctx, w.Duration)
	defer cancel()

	counts := make([]int64, workers)
	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for tid := 0; tid < workers; tid++ {
		g.Go(func() error {
			counts[tid] = drive(gctx, list, mix, w.KeyRange, tid, w.Seed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	elapsed := time.Since(start)

	res := Result{
		Tracker:    w.Tracker,
		Mix:        w.Mix,
		Workers:    workers,
		Elapsed:    elapsed,
		Retired:    list.Tracker().TotalRetired(),
		InUse:      list.InUse(),
		FinalSize:  list.Len(),
		Violations: list.Violations(),
	}
	for _, c := range counts {
		res.Ops += c
	}
	if elapsed > 0 {
		res.Throughput = float64(res.Ops) / elapsed.Seconds()
	}
	res.AvgRetired, res.PeakRetired = list.RetiredStats()
	return res, nil
}

func drive(ctx context.Context, list *skiplist.SkipList[int64, int64], mix Mix, keys, tid int, seed uint64) int64 {
	rng := rand.New(rand.NewPCG(seed, uint64(tid)))
	var ops int64
	for {
		if ops&63 == 0 && ctx.Err() != nil {
			return ops
		}
		k := int64(rng.IntN(keys))
		switch p := rng.IntN(100); {
		case p < mix.Get:
			list.Get(k, tid)
		case p < mix.Get+mix.Update:
			if mix.Insert {
				list.Insert(k, k, tid)
			} else {
				list.Put(k, k, tid)
			}
		default:
			list.Remove(k, tid)
		}
		ops++
	}
}
