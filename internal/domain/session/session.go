package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
)

// State is the derived progress of a session. It is never stored.
type State string

// Session states.
const (
	StateIssued   State = "issued"
	StatePartial  State = "partial"
	StateComplete State = "complete"
)

// NewID mints an opaque session token.
func NewID() string { return uuid.NewString() }

// ParseID validates a client-supplied session token.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSession, s)
	}
	return id.String(), nil
}

// Session is the ledger entry written at trigger time: which probes were scheduled.
type Session struct {
	id       string
	probeIDs []string
	issuedAt time.Time
}

// New creates a ledger entry for the scheduled probe ids.
func New(id string, probeIDs []string, issuedAt time.Time) (Session, error) {
	if _, err := ParseID(id); err != nil {
		return Session{}, err
	}
	seen := make(map[string]struct{}, len(probeIDs))
	for _, p := range probeIDs {
		if _, dup := seen[p]; dup {
			return Session{}, fmt.Errorf("probe %s scheduled twice", p)
		}
		seen[p] = struct{}{}
	}
	ids := append([]string(nil), probeIDs...)
	sort.Strings(ids)
	return Session{id: id, probeIDs: ids, issuedAt: issuedAt}, nil
}

// Reconstruct creates a Session without validation (storage hydration).
func Reconstruct(id string, probeIDs []string, issuedAt time.Time) Session {
	return Session{id: id, probeIDs: probeIDs, issuedAt: issuedAt}
}

// ID returns the session token.
func (s Session) ID() string { return s.id }

// ProbeIDs returns the definitions scheduled at trigger time, sorted.
func (s Session) ProbeIDs() []string { return s.probeIDs }

// Scheduled returns how many results the session expects.
func (s Session) Scheduled() int { return len(s.probeIDs) }

// IssuedAt returns the trigger time.
func (s Session) IssuedAt() time.Time { return s.issuedAt }

// StateFor derives the state from the number of results received.
func (s Session) StateFor(received int) State {
	switch {
	case received == 0 && s.Scheduled() > 0:
		return StateIssued
	case received < s.Scheduled():
		return StatePartial
	default:
		return StateComplete
	}
}

// Report is a session together with the results stored so far.
type Report struct {
	ID      string
	Ledger  *Session
	Results []domresult.Result
}

// Received returns the number of stored results.
func (r Report) Received() int { return len(r.Results) }

// Scheduled returns the expected result count. Without a ledger entry the
// stored rows are the only evidence, so the count equals Received.
func (r Report) Scheduled() int {
	if r.Ledger == nil {
		return r.Received()
	}
	return r.Ledger.Scheduled()
}

// State derives issued/partial/complete. Without a ledger entry a session
// with no rows is issued and a session with rows is complete.
func (r Report) State() State {
	if r.Ledger == nil {
		if r.Received() == 0 {
			return StateIssued
		}
		return StateComplete
	}
	return r.Ledger.StateFor(r.Received())
}

// Pending returns scheduled probe ids that have no result yet.
func (r Report) Pending() []string {
	if r.Ledger == nil {
		return nil
	}
	got := make(map[string]struct{}, len(r.Results))
	for _, res := range r.Results {
		got[res.ProbeID()] = struct{}{}
	}
	var pending []string
	for _, id := range r.Ledger.ProbeIDs() {
		if _, ok := got[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

// AllPassed reports whether the session has results and all of them passed.
func (r Report) AllPassed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// SortResults orders results by start time, then probe id.
func SortResults(results []domresult.Result) {
	sort.Slice(results, func(i, j int) bool {
		if !results[i].StartedAt().Equal(results[j].StartedAt()) {
			return results[i].StartedAt().Before(results[j].StartedAt())
		}
		return results[i].ProbeID() < results[j].ProbeID()
	})
}
