package results

import (
	"testing"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestPutGetReport(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()

	seq, err := s.Put(map[string]any{"tracker": "WFR", "ops": 42.0})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get(seq)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StateNew || rec.Retries != 0 {
		t.Fatalf("record = %+v, want NEW with no retries", rec)
	}
	rep, err := rec.Report()
	if err != nil {
		t.Fatal(err)
	}
	if got := rep.GetFields()["tracker"].GetStringValue(); got != "WFR" {
		t.Errorf("tracker = %q, want WFR", got)
	}
	if got := rep.GetFields()["ops"].GetNumberValue(); got != 42 {
		t.Errorf("ops = %v, want 42", got)
	}
}

func TestStateMachine(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()

	a, _ := s.Put(map[string]any{"n": 1.0})
	b, _ := s.Put(map[string]any{"n": 2.0})

	if err := s.MarkSent(a); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkAcked(a); err != nil {
		t.Fatal(err)
	}

	var pending []uint64
	err := s.ScanByState(func(r Record) error {
		pending = append(pending, r.Seq)
		return nil
	}, StateNew, StateSent)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0] != b {
		t.Fatalf("pending = %v, want [%d]", pending, b)
	}

	rec, _ := s.Get(a)
	if rec.State != StateAcked || rec.Retries != 1 || rec.LastAttempt == 0 {
		t.Errorf("acked record = %+v", rec)
	}
	if _, err := rec.Report(); err != nil {
		t.Errorf("payload lost across state updates: %v", err)
	}
}

func TestSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	s.Put(map[string]any{})
	last, _ := s.Put(map[string]any{})
	s.Close()

	s = openStore(t, dir)
	defer s.Close()
	next, err := s.Put(map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if next != last+1 {
		t.Fatalf("seq after reopen = %d, want %d", next, last+1)
	}
}

func TestPutRejectsUnencodable(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()
	if _, err := s.Put(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected error for a channel value")
	}
}
