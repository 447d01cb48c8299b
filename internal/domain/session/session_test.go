package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
)

func mustSession(t *testing.T, probeIDs ...string) Session {
	t.Helper()
	s, err := New(NewID(), probeIDs, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func pass(sessionID, probeID string) domresult.Result {
	now := time.Now()
	return domresult.Pass(sessionID, probeID, now, now)
}

func fail(sessionID, probeID string) domresult.Result {
	now := time.Now()
	return domresult.Fail(sessionID, probeID, now, now, "unhealthy", domresult.Raw{Error: "unhealthy"})
}

func TestParseID(t *testing.T) {
	id := NewID()
	got, err := ParseID(id)
	if err != nil {
		t.Fatalf("ParseID(%q): %v", id, err)
	}
	if got != id {
		t.Errorf("ParseID() = %q, want %q", got, id)
	}

	if _, err := ParseID("not-a-uuid"); !errors.Is(err, domain.ErrInvalidSession) {
		t.Errorf("ParseID(garbage) = %v, want ErrInvalidSession", err)
	}
}

func TestNew_DuplicateProbe(t *testing.T) {
	if _, err := New(NewID(), []string{"a", "a"}, time.Now()); err == nil {
		t.Fatal("expected error for duplicate probe id")
	}
}

func TestStateFor(t *testing.T) {
	s := mustSession(t, "a", "b", "c")
	tests := []struct {
		received int
		want     State
	}{
		{0, StateIssued},
		{1, StatePartial},
		{2, StatePartial},
		{3, StateComplete},
	}
	for _, tc := range tests {
		if got := s.StateFor(tc.received); got != tc.want {
			t.Errorf("StateFor(%d) = %q, want %q", tc.received, got, tc.want)
		}
	}
}

func TestStateFor_NothingScheduled(t *testing.T) {
	s := mustSession(t)
	if got := s.StateFor(0); got != StateComplete {
		t.Errorf("StateFor(0) = %q, want %q", got, StateComplete)
	}
}

func TestReport_Pending(t *testing.T) {
	s := mustSession(t, "a", "b", "c")
	r := Report{ID: s.ID(), Ledger: &s, Results: []domresult.Result{pass(s.ID(), "b")}}

	if r.State() != StatePartial {
		t.Errorf("State() = %q, want partial", r.State())
	}
	pending := r.Pending()
	if len(pending) != 2 || pending[0] != "a" || pending[1] != "c" {
		t.Errorf("Pending() = %v, want [a c]", pending)
	}
}

func TestReport_NoLedger(t *testing.T) {
	empty := Report{ID: NewID()}
	if empty.State() != StateIssued {
		t.Errorf("empty State() = %q, want issued", empty.State())
	}

	withRows := Report{ID: "x", Results: []domresult.Result{pass("x", "a")}}
	if withRows.State() != StateComplete {
		t.Errorf("State() = %q, want complete", withRows.State())
	}
	if withRows.Scheduled() != 1 {
		t.Errorf("Scheduled() = %d, want 1", withRows.Scheduled())
	}
}

func TestReport_AllPassed(t *testing.T) {
	if (Report{}).AllPassed() {
		t.Error("empty report must not count as passed")
	}
	ok := Report{Results: []domresult.Result{pass("s", "a"), pass("s", "b")}}
	if !ok.AllPassed() {
		t.Error("expected AllPassed()")
	}
	mixed := Report{Results: []domresult.Result{pass("s", "a"), fail("s", "b")}}
	if mixed.AllPassed() {
		t.Error("one failure must fail the report")
	}
}
