package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smr/api/health"
	"smr/config"
	"smr/infra/kafka"
	"smr/infra/results"
	"smr/jobs/broadcaster"
	"smr/service"
)

func main() {
	cfg, err := config.Default().FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	flag.StringVar(&cfg.Tracker, "tracker", cfg.Tracker, "reclamation backend: NIL, RCU, HR or WFR")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker goroutines, one tid each")
	flag.IntVar(&cfg.EpochFreq, "epochf", cfg.EpochFreq, "allocations per thread between epoch advances")
	flag.IntVar(&cfg.EmptyFreq, "emptyf", cfg.EmptyFreq, "retirements per batch scan")
	flag.IntVar(&cfg.Attempts, "attempts", cfg.Attempts, "WFR fast path attempts before helping")
	flag.BoolVar(&cfg.NoCollect, "nocollect", cfg.NoCollect, "never reclaim retired nodes")
	flag.StringVar(&cfg.Mix, "mix", cfg.Mix, "operation mix: write, read or insert")
	flag.IntVar(&cfg.KeyRange, "keys", cfg.KeyRange, "key range")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "run length")
	flag.StringVar(&cfg.ResultsDir, "results", cfg.ResultsDir, "result outbox directory")
	flag.StringVar(&cfg.Publisher, "publisher", cfg.Publisher, "result publisher: kafka-go, sarama or empty")
	flag.StringVar(&cfg.Topic, "topic", cfg.Topic, "kafka topic")
	flag.StringVar(&cfg.HealthAddr, "health", cfg.HealthAddr, "gRPC health listen address, empty to disable")
	brokers := flag.String("brokers", "", "comma separated kafka brokers")
	runs := flag.Int("runs", 1, "number of consecutive runs")
	flag.Parse()
	if *brokers != "" {
		cfg.Brokers = strings.Split(*brokers, ",")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---------------- Results outbox ----------------

	store, err := results.Open(cfg.ResultsDir)
	if err != nil {
		log.Fatalf("results store init failed: %v", err)
	}
	defer store.Close()

	// ---------------- Publisher ----------------

	var pub kafka.Publisher
	switch cfg.Publisher {
	case "kafka-go":
		pub = kafka.NewProducer(cfg.Brokers, cfg.Topic)
	case "sarama":
		if pub, err = kafka.NewSaramaProducer(cfg.Brokers, cfg.Topic); err != nil {
			log.Fatalf("sarama producer init failed: %v", err)
		}
	}
	var bc *broadcaster.Broadcaster
	if pub != nil {
		bc = broadcaster.New(store, pub, 2*time.Second)
		bc.Start(ctx)
	}

	// ---------------- Health ----------------

	hs := health.New()
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			log.Fatalf("listen failed: %v", err)
		}
		go func() {
			if err := hs.Serve(lis); err != nil {
				log.Printf("[health] exited: %v", err)
			}
		}()
		defer hs.Stop()
	}

	// ---------------- Runs ----------------

	for i := 0; i < *runs && ctx.Err() == nil; i++ {
		res, err := service.Run(ctx, service.Workload{
			Tracker:  cfg.Tracker,
			Config:   cfg.TrackerConfig(),
			Mix:      cfg.Mix,
			KeyRange: cfg.KeyRange,
			Duration: cfg.Duration,
			Seed:     uint64(i + 1),
		})
		if err != nil {
			log.Fatalf("run failed: %v", err)
		}
		hs.Report(res.Tracker, res.Violations)

		seq, err := store.Put(res.Fields())
		if err != nil {
			log.Printf("[results] %v", err)
		}
		fmt.Printf("run %d %s/%s workers=%d ops=%d %.0f ops/s retired avg=%.1f peak=%d size=%d violations=%d\n",
			seq, res.Tracker, res.Mix, res.Workers, res.Ops, res.Throughput,
			res.AvgRetired, res.PeakRetired, res.FinalSize, res.Violations)
	}

	// ---------------- Shutdown ----------------

	// the loop must be gone before the final flush, and both before the
	// deferred store.Close
	if bc != nil {
		bc.Stop()
		if _, err := bc.Flush(context.Background()); err != nil {
			log.Printf("[broadcaster] final flush: %v", err)
		}
		if err := bc.Close(); err != nil {
			log.Printf("[broadcaster] close: %v", err)
		}
	}
}
