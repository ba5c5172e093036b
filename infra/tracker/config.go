package tracker

const (
	defaultSlots     = 16
	defaultEpochFreq = 150
	defaultEmptyFreq = 30
	defaultAttempts  = 16
	defaultRingSize  = 1 << 12
)

// Config tunes a backend. Zero fields take defaults.
type Config struct {
	Workers int // number of tids
	Slots   int // reservation slots per tid

	// EpochFreq is how many allocations each thread performs between
	// global epoch advances; the effective period is EpochFreq*Workers.
	EpochFreq int

	// EmptyFreq is how many retirements fill one batch before it is scanned.
	EmptyFreq int

	// NoCollect disables reclamation of retired records.
	NoCollect bool

	// FastPathAttempts bounds the WFR fast path before it asks for help.
	FastPathAttempts int

	// RingSize is the per-thread RCU retire ring capacity. Power of two.
	RingSize uint64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Slots <= 0 {
		c.Slots = defaultSlots
	}
	if c.EpochFreq <= 0 {
		c.EpochFreq = defaultEpochFreq
	}
	if c.EmptyFreq <= 0 {
		c.EmptyFreq = defaultEmptyFreq
	}
	if c.FastPathAttempts <= 0 {
		c.FastPathAttempts = defaultAttempts
	}
	if c.RingSize == 0 || c.RingSize&(c.RingSize-1) != 0 {
		c.RingSize = defaultRingSize
	}
	return c
}

func (c Config) epochPeriod() uint64 {
	return uint64(c.EpochFreq) * uint64(c.Workers)
}
