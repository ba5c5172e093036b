// Package results is a durable outbox of benchmark run reports.
//
// Each run is one pebble key run/<seq>; the value is a 13 byte delivery
// header followed by the report as a protobuf Struct.
package results

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"smr/infra/sequence"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte // encoded report
}

// Report decodes the payload.
func (r Record) Report() (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(r.Payload, s); err != nil {
		return nil, errors.Wrapf(err, "results: decode run %d", r.Seq)
	}
	return s, nil
}

const headerLen = 1 + 4 + 8

// [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[headerLen:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, errors.Newf("results: run %d: short record (%d bytes)", seq, len(b))
	}
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[headerLen:]),
	}, nil
}

// -------------------- Store --------------------

type Store struct {
	db  *pebble.DB
	seq *sequence.Sequencer
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "results: open %s", dir)
	}
	s := &Store{db: db}
	last, err := s.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.seq = sequence.New(last)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a NEW report and returns its run sequence.
func (s *Store) Put(fields map[string]any) (uint64, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return 0, errors.Wrap(err, "results: build report")
	}
	payload, err := proto.Marshal(st)
	if err != nil {
		return 0, errors.Wrap(err, "results: encode report")
	}
	seq := s.seq.Next()
	rec := Record{Seq: seq, State: StateNew, Payload: payload}
	if err := s.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync); err != nil {
		return 0, errors.Wrapf(err, "results: put run %d", seq)
	}
	return seq, nil
}

func (s *Store) Get(seq uint64) (Record, error) {
	val, closer, err := s.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, errors.Wrapf(err, "results: get run %d", seq)
	}
	defer closer.Close()
	return decodeRecord(seq, val)
}

// UpdateState rewrites the delivery header and keeps the payload.
func (s *Store) UpdateState(seq uint64, state State, retries uint32) error {
	rec, err := s.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return s.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (s *Store) MarkSent(seq uint64) error {
	rec, err := s.Get(seq)
	if err != nil {
		return err
	}
	return s.UpdateState(seq, StateSent, rec.Retries+1)
}

func (s *Store) MarkAcked(seq uint64) error {
	rec, err := s.Get(seq)
	if err != nil {
		return err
	}
	return s.UpdateState(seq, StateAcked, rec.Retries)
}

// -------------------- Scan --------------------

// ScanByState calls fn for every run in one of the given states, in
// sequence order.
func (s *Store) ScanByState(fn func(Record) error, states ...State) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if !hasState(states, rec.State) {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func hasState(states []State, st State) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

func (s *Store) lastSeq() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- Helpers --------------------

const keyPrefix = "run/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf(keyPrefix+"%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(keyPrefix))), "%d", &seq); err != nil {
		return 0, errors.Wrapf(err, "results: bad key %q", b)
	}
	return seq, nil
}
