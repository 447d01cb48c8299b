package result

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
)

// Timestamps are stored as unix nanoseconds.

func formatTime(t time.Time) string { return strconv.FormatInt(t.UnixNano(), 10) }

func parseTime(m map[string]string, field string) (time.Time, error) {
	n, err := strconv.ParseInt(m[field], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return time.Unix(0, n).UTC(), nil
}

// resultToHash converts a domain Result to a map for HSET.
// AI fields are omitted when absent so HGETALL hydrates them as nil.
func resultToHash(r domresult.Result) map[string]string {
	clamped := "0"
	if r.DurationClamped() {
		clamped = "1"
	}
	m := map[string]string{
		"id":               r.ID(),
		"session_id":       r.SessionID(),
		"probe_id":         r.ProbeID(),
		"started_at":       formatTime(r.StartedAt()),
		"finished_at":      formatTime(r.FinishedAt()),
		"duration_ms":      strconv.FormatInt(r.DurationMs(), 10),
		"duration_clamped": clamped,
		"status":           string(r.Status()),
		"created_at":       formatTime(r.CreatedAt()),
	}
	if r.ErrorCode() != "" {
		m["error_code"] = r.ErrorCode()
	}
	if raw := r.Raw(); raw != nil {
		m["raw"] = raw.Encode()
	}
	if s := r.AIExplanation(); s != nil {
		m["ai_explanation"] = *s
	}
	if s := r.AIFixSuggestion(); s != nil {
		m["ai_fix_suggestion"] = *s
	}
	return m
}

func optional(m map[string]string, field string) *string {
	v, ok := m[field]
	if !ok {
		return nil
	}
	return &v
}

// resultFromHash hydrates a domain Result from an HGETALL result map.
func resultFromHash(m map[string]string) (domresult.Result, error) {
	startedAt, err := parseTime(m, "started_at")
	if err != nil {
		return domresult.Result{}, err
	}
	finishedAt, err := parseTime(m, "finished_at")
	if err != nil {
		return domresult.Result{}, err
	}
	createdAt, err := parseTime(m, "created_at")
	if err != nil {
		return domresult.Result{}, err
	}
	durationMs, err := strconv.ParseInt(m["duration_ms"], 10, 64)
	if err != nil {
		return domresult.Result{}, fmt.Errorf("invalid duration_ms: %w", err)
	}
	raw, err := domresult.DecodeRaw(m["raw"])
	if err != nil {
		return domresult.Result{}, err
	}

	return domresult.Reconstruct(
		m["id"], m["session_id"], m["probe_id"],
		startedAt, finishedAt, durationMs, m["duration_clamped"] == "1",
		domresult.Status(m["status"]), m["error_code"], raw,
		optional(m, "ai_explanation"), optional(m, "ai_fix_suggestion"), createdAt,
	), nil
}

// sessionToHash converts a ledger entry to a map for HSET.
func sessionToHash(s domsession.Session) (map[string]string, error) {
	ids, err := json.Marshal(s.ProbeIDs())
	if err != nil {
		return nil, fmt.Errorf("marshal probe ids: %w", err)
	}
	return map[string]string{
		"id":        s.ID(),
		"probe_ids": string(ids),
		"issued_at": formatTime(s.IssuedAt()),
	}, nil
}

// sessionFromHash hydrates a ledger entry from an HGETALL result map.
func sessionFromHash(m map[string]string) (domsession.Session, error) {
	issuedAt, err := parseTime(m, "issued_at")
	if err != nil {
		return domsession.Session{}, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(m["probe_ids"]), &ids); err != nil {
		return domsession.Session{}, fmt.Errorf("unmarshal probe ids: %w", err)
	}
	return domsession.Reconstruct(m["id"], ids, issuedAt), nil
}
