package tracker

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// ErrUnknownBackend is returned by New for a name not in the registry.
var ErrUnknownBackend = errors.New("tracker: unknown backend")

type constructor func(Storage, Config) Backend

var backends = map[string]constructor{
	"NIL": func(s Storage, c Config) Backend { return newNil(s, c) },
	"RCU": func(s Storage, c Config) Backend { return newRCU(s, c) },
	"HR":  func(s Storage, c Config) Backend { return newHR(s, c) },
	"WFR": func(s Storage, c Config) Backend { return newWFR(s, c) },
}

// New builds the tracker registered under name.
func New(name string, storage Storage, cfg Config) (*Tracker, error) {
	ctor, ok := backends[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
	cfg = cfg.withDefaults()
	return newTracker(name, ctor(storage, cfg), cfg), nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	out := make([]string, 0, len(backends))
	for n := range backends {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
