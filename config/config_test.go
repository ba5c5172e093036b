package config

import (
	"testing"

	"github.com/cockroachdb/errors"

	"smr/infra/tracker"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SMR_TRACKER", "HR")
	t.Setenv("SMR_EPOCHF", "10")
	t.Setenv("SMR_EMPTYF", "3")

	c, err := Default().FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.Tracker != "HR" || c.EpochFreq != 10 || c.EmptyFreq != 3 {
		t.Fatalf("env not applied: %+v", c)
	}
	tc := c.TrackerConfig()
	if tc.EpochFreq != 10 || tc.EmptyFreq != 3 || tc.Workers != c.Workers {
		t.Errorf("tracker config = %+v", tc)
	}
}

func TestFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("SMR_EPOCHF", "often")
	if _, err := Default().FromEnv(); err == nil {
		t.Fatal("expected error for non-numeric SMR_EPOCHF")
	}
}

func TestValidateUnknownTracker(t *testing.T) {
	c := Default()
	c.Tracker = "EBR"
	if err := c.Validate(); !errors.Is(err, tracker.ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"workers":   func(c *Config) { c.Workers = 0 },
		"emptyf":    func(c *Config) { c.EmptyFreq = -1 },
		"mix":       func(c *Config) { c.Mix = "scan" },
		"keys":      func(c *Config) { c.KeyRange = 1 },
		"duration":  func(c *Config) { c.Duration = 0 },
		"publisher": func(c *Config) { c.Publisher = "nats" },
		"brokers":   func(c *Config) { c.Publisher = "sarama" },
	}
	for name, mutate := range cases {
		c := Default()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
