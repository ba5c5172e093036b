// Package config holds the settings of a benchmark run: which tracker to
// use, how it is tuned, the workload to drive and where results go.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"smr/infra/tracker"
)

type Config struct {
	Tracker   string
	Workers   int
	EpochFreq int
	EmptyFreq int
	Attempts  int // WFR fast path attempts
	NoCollect bool

	Mix      string // "write", "read" or "insert"
	KeyRange int
	Duration time.Duration

	ResultsDir string
	Brokers    []string
	Topic      string
	Publisher  string // "kafka-go", "sarama" or "" for none

	HealthAddr string
}

func Default() Config {
	return Config{
		Tracker:    "WFR",
		Workers:    4,
		EpochFreq:  150,
		EmptyFreq:  30,
		Attempts:   16,
		Mix:        "write",
		KeyRange:   1 << 16,
		Duration:   5 * time.Second,
		ResultsDir: "./smr_results",
		Topic:      "smr.results",
		HealthAddr: ":50051",
	}
}

// FromEnv applies SMR_TRACKER, SMR_EPOCHF and SMR_EMPTYF on top of c.
func (c Config) FromEnv() (Config, error) {
	if v := os.Getenv("SMR_TRACKER"); v != "" {
		c.Tracker = v
	}
	var err error
	if c.EpochFreq, err = envInt("SMR_EPOCHF", c.EpochFreq); err != nil {
		return c, err
	}
	if c.EmptyFreq, err = envInt("SMR_EMPTYF", c.EmptyFreq); err != nil {
		return c, err
	}
	return c, nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.Wrapf(err, "config: %s", name)
	}
	return n, nil
}

var mixes = map[string]bool{"write": true, "read": true, "insert": true}

func (c Config) Validate() error {
	known := false
	for _, n := range tracker.Names() {
		if n == c.Tracker {
			known = true
		}
	}
	switch {
	case !known:
		return errors.Wrapf(tracker.ErrUnknownBackend, "config: tracker %q", c.Tracker)
	case c.Workers <= 0:
		return errors.Newf("config: workers must be positive, got %d", c.Workers)
	case c.EpochFreq <= 0 || c.EmptyFreq <= 0:
		return errors.Newf("config: epochf %d and emptyf %d must be positive", c.EpochFreq, c.EmptyFreq)
	case !mixes[c.Mix]:
		return errors.Newf("config: unknown mix %q", c.Mix)
	case c.KeyRange < 2:
		return errors.Newf("config: key range %d too small", c.KeyRange)
	case c.Duration <= 0:
		return errors.New("config: duration must be positive")
	case c.Publisher != "" && c.Publisher != "kafka-go" && c.Publisher != "sarama":
		return errors.Newf("config: unknown publisher %q", c.Publisher)
	case c.Publisher != "" && len(c.Brokers) == 0:
		return errors.New("config: publisher needs at least one broker")
	}
	return nil
}

// TrackerConfig is the tracker tuning this run asks for.
func (c Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		Workers:          c.Workers,
		EpochFreq:        c.EpochFreq,
		EmptyFreq:        c.EmptyFreq,
		FastPathAttempts: c.Attempts,
		NoCollect:        c.NoCollect,
	}
}
