package result

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
)

// Status is the outcome of one probe execution.
type Status string

// Status values. There is no third state.
const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// IsValid checks if the status is one of the two allowed values.
func (s Status) IsValid() bool {
	return s == StatusPass || s == StatusFail
}

// Raw is the free-form diagnostic payload of a failed execution.
type Raw struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

// Encode serializes the payload for storage.
func (r Raw) Encode() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// DecodeRaw parses a stored payload. Empty input yields nil.
func DecodeRaw(s string) (*Raw, error) {
	if s == "" {
		return nil, nil
	}
	var r Raw
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode raw: %w", err)
	}
	return &r, nil
}

// Diagnosis is the AI-generated explanation of a failure.
type Diagnosis struct {
	Explanation   string
	FixSuggestion string
}

// Result is the persisted outcome of one probe within one session (immutable value object).
type Result struct {
	id              string
	sessionID       string
	probeID         string
	startedAt       time.Time
	finishedAt      time.Time
	durationMs      int64
	durationClamped bool
	status          Status
	errorCode       string
	raw             *Raw
	aiExplanation   *string
	aiFixSuggestion *string
	createdAt       time.Time
}

func duration(started, finished time.Time) (int64, bool) {
	ms := finished.Sub(started).Milliseconds()
	if ms < 0 {
		return 0, true
	}
	return ms, false
}

// Pass creates a passing result.
func Pass(sessionID, probeID string, started, finished time.Time) Result {
	ms, clamped := duration(started, finished)
	return Result{
		sessionID:       sessionID,
		probeID:         probeID,
		startedAt:       started,
		finishedAt:      finished,
		durationMs:      ms,
		durationClamped: clamped,
		status:          StatusPass,
	}
}

// Fail creates a failing result. An empty code is recorded as unknown_error.
func Fail(sessionID, probeID string, started, finished time.Time, code string, raw Raw) Result {
	if code == "" {
		code = domprobe.CodeUnknown
	}
	ms, clamped := duration(started, finished)
	return Result{
		sessionID:       sessionID,
		probeID:         probeID,
		startedAt:       started,
		finishedAt:      finished,
		durationMs:      ms,
		durationClamped: clamped,
		status:          StatusFail,
		errorCode:       code,
		raw:             &raw,
	}
}

// Reconstruct creates a Result without validation (storage hydration).
func Reconstruct(
	id, sessionID, probeID string,
	startedAt, finishedAt time.Time, durationMs int64, durationClamped bool,
	status Status, errorCode string, raw *Raw,
	aiExplanation, aiFixSuggestion *string, createdAt time.Time,
) Result {
	return Result{
		id:              id,
		sessionID:       sessionID,
		probeID:         probeID,
		startedAt:       startedAt,
		finishedAt:      finishedAt,
		durationMs:      durationMs,
		durationClamped: durationClamped,
		status:          status,
		errorCode:       errorCode,
		raw:             raw,
		aiExplanation:   aiExplanation,
		aiFixSuggestion: aiFixSuggestion,
		createdAt:       createdAt,
	}
}

// WithDiagnosis attaches AI text to a failing result. Passing results are returned unchanged.
func (r Result) WithDiagnosis(d Diagnosis) Result {
	if r.status != StatusFail {
		return r
	}
	explanation, fix := d.Explanation, d.FixSuggestion
	r.aiExplanation = &explanation
	r.aiFixSuggestion = &fix
	return r
}

// WithIdentity assigns the storage id and creation time.
func (r Result) WithIdentity(id string, createdAt time.Time) Result {
	r.id = id
	r.createdAt = createdAt
	return r
}

// Validate checks the pass/fail field contract.
func (r *Result) Validate() error {
	if r.sessionID == "" || r.probeID == "" {
		return fmt.Errorf("session and probe ids are required: %w", domain.ErrInvalidResult)
	}
	if !r.status.IsValid() {
		return fmt.Errorf("status %q: %w", r.status, domain.ErrInvalidResult)
	}
	if r.durationMs < 0 {
		return fmt.Errorf("negative duration: %w", domain.ErrInvalidResult)
	}
	switch r.status {
	case StatusFail:
		if r.errorCode == "" {
			return fmt.Errorf("failed result without error code: %w", domain.ErrInvalidResult)
		}
	case StatusPass:
		if r.errorCode != "" || r.raw != nil || r.aiExplanation != nil || r.aiFixSuggestion != nil {
			return fmt.Errorf("passing result with error fields: %w", domain.ErrInvalidResult)
		}
	}
	return nil
}

// ID returns the storage identifier.
func (r Result) ID() string { return r.id }

// SessionID returns the grouping session.
func (r Result) SessionID() string { return r.sessionID }

// ProbeID returns the definition id.
func (r Result) ProbeID() string { return r.probeID }

// StartedAt returns when the probe started.
func (r Result) StartedAt() time.Time { return r.startedAt }

// FinishedAt returns when the probe finished.
func (r Result) FinishedAt() time.Time { return r.finishedAt }

// DurationMs returns the non-negative execution time.
func (r Result) DurationMs() int64 { return r.durationMs }

// DurationClamped reports that the clock went backwards and the duration was clamped to 0.
func (r Result) DurationClamped() bool { return r.durationClamped }

// Status returns pass or fail.
func (r Result) Status() Status { return r.status }

// Passed is shorthand for Status() == StatusPass.
func (r Result) Passed() bool { return r.status == StatusPass }

// ErrorCode returns the failure code; empty for passing results.
func (r Result) ErrorCode() string { return r.errorCode }

// Raw returns the diagnostic payload; nil for passing results.
func (r Result) Raw() *Raw { return r.raw }

// AIExplanation returns the AI explanation, if any.
func (r Result) AIExplanation() *string { return r.aiExplanation }

// AIFixSuggestion returns the AI fix suggestion, if any.
func (r Result) AIFixSuggestion() *string { return r.aiFixSuggestion }

// CreatedAt returns when the row was stored.
func (r Result) CreatedAt() time.Time { return r.createdAt }
