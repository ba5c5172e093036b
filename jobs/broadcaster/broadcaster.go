package broadcaster

import (
	"context"
	"encoding/binary"
	"log"
	"sync"
	"time"

	"smr/infra/kafka"
	"smr/infra/results"
)

// maxRetries moves a run to FAILED after this many unacknowledged sends.
const maxRetries = 5

// Broadcaster drains undelivered run reports from the outbox.
type Broadcaster struct {
	store     *results.Store
	publisher kafka.Publisher
	interval  time.Duration

	mu     sync.Mutex // one Flush at a time
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store *results.Store, publisher kafka.Publisher, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		store:     store,
		publisher: publisher,
		interval:  interval,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start runs Flush every interval until ctx is done or Stop is called.
func (b *Broadcaster) Start(ctx context.Context) {
	log.Println("[broadcaster] started")

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				if _, err := b.Flush(ctx); err != nil {
					log.Printf("[broadcaster] flush: %v", err)
				}
			}
		}
	}()
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// Flush publishes every NEW or SENT run once and reports how many were
// acknowledged. A failed send leaves the run SENT for the next pass.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acked := 0
	err := b.store.ScanByState(func(rec results.Record) error {
		if rec.Retries >= maxRetries {
			log.Printf("[broadcaster] run %d failed after %d attempts", rec.Seq, rec.Retries)
			return b.store.UpdateState(rec.Seq, results.StateFailed, rec.Retries)
		}

		// SENT first so a crash mid-publish is retried
		if err := b.store.MarkSent(rec.Seq); err != nil {
			return err
		}

		key := binary.BigEndian.AppendUint64(nil, rec.Seq)
		if err := b.publisher.Send(ctx, key, rec.Payload); err != nil {
			log.Printf("[broadcaster] run %d: %v", rec.Seq, err)
			return nil
		}

		if err := b.store.MarkAcked(rec.Seq); err != nil {
			return err
		}
		acked++
		return nil
	}, results.StateNew, results.StateSent)
	return acked, err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

// Stop ends the loop started by Start and waits for an in-flight Flush.
// The store may be closed once Stop returns.
func (b *Broadcaster) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

// Close stops the loop and closes the publisher.
func (b *Broadcaster) Close() error {
	b.Stop()
	return b.publisher.Close()
}
