package client

import "time"

// Session states.
const (
	StateIssued   = "issued"
	StatePartial  = "partial"
	StateComplete = "complete"
)

// Result statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Health verdicts.
const (
	Healthy   = "healthy"
	Unhealthy = "unhealthy"
)

// RunTicket is the answer to TriggerRun.
type RunTicket struct {
	SessionID string `json:"session_uuid"`
	Scheduled int    `json:"scheduled"`
}

// RawError is the diagnostic payload of a failed result.
type RawError struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

// Result is one probe outcome within a session.
type Result struct {
	ID              string    `json:"id"`
	ProbeID         string    `json:"probe_id"`
	ProbeName       string    `json:"probe_name"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationMs      int64     `json:"duration_ms"`
	DurationClamped bool      `json:"duration_clamped"`
	ErrorCode       *string   `json:"error_code"`
	Raw             *RawError `json:"raw"`
	Meaning         *string   `json:"meaning"`
	Fix             *string   `json:"fix"`
	AIExplanation   *string   `json:"ai_explanation"`
	AIFixSuggestion *string   `json:"ai_fix_suggestion"`
}

// Passed reports whether the probe passed.
func (r Result) Passed() bool { return r.Status == StatusPass }

// Session is the set of results stored so far for one run.
type Session struct {
	ID        string   `json:"session_uuid"`
	State     string   `json:"state"`
	Scheduled int      `json:"scheduled"`
	Received  int      `json:"received"`
	Pending   []string `json:"pending"`
	Results   []Result `json:"results"`
}

// Complete reports whether every scheduled probe has a result.
func (s Session) Complete() bool { return s.State == StateComplete }

// Failed returns the failing results.
func (s Session) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.Passed() {
			out = append(out, r)
		}
	}
	return out
}

// Explanation is the catalog text for one error code.
type Explanation struct {
	Meaning string `json:"meaning"`
	Fix     string `json:"fix"`
}

// Definition is a catalog entry.
type Definition struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
	Severity    string                 `json:"severity"`
	Active      bool                   `json:"active"`
	ErrorMap    map[string]Explanation `json:"error_map"`
	CreatedAt   int64                  `json:"created_at"`
}

// Health is the aggregated product health signal.
type Health struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"lastCheck"`
}

// Healthy reports whether the latest session fully passed.
func (h Health) Healthy() bool { return h.Status == Healthy }
