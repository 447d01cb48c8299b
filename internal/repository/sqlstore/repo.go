// Package sqlstore implements the definition store, result store and session
// ledger over the embedded SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/cvgen/internal/db"
	"github.com/kailas-cloud/cvgen/internal/db/sqlite"
	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
)

// Repo is the SQLite-backed store. Timestamps are stored as unix nanoseconds,
// definition created_at as unix milliseconds.
type Repo struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// New creates a repository over an opened database.
func New(d *sqlite.DB) *Repo {
	return &Repo{db: d.SQL(), now: time.Now, newID: uuid.NewString}
}

func storeErr(op string, err error) error {
	return &db.Error{Op: op, Err: err}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullablePtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- definitions ---

const definitionColumns = `id, name, description, category, severity, is_active, error_map, created_at`

// SeedDefaults inserts defs whose id and name are both unused and returns how many were written.
func (r *Repo) SeedDefaults(ctx context.Context, defs []domprobe.Definition) (int, error) {
	inserted := 0
	for _, d := range defs {
		errorMap, err := json.Marshal(d.Taxonomy())
		if err != nil {
			return inserted, fmt.Errorf("marshal taxonomy: %w", err)
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO probe_definitions (`+definitionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, d.ID(), d.Name(), d.Description(), nullable(d.Category()), nullable(string(d.Severity())),
			boolInt(d.Active()), string(errorMap), d.CreatedAt())
		if err != nil {
			return inserted, storeErr(db.OpInsert, fmt.Errorf("seed definition %s: %w", d.Name(), err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (domprobe.Definition, error) {
	var (
		id, name, description string
		category, severity    sql.NullString
		errorMap              sql.NullString
		active                int
		createdAt             int64
	)
	if err := row.Scan(&id, &name, &description, &category, &severity, &active, &errorMap, &createdAt); err != nil {
		return domprobe.Definition{}, err
	}
	var taxonomy domprobe.Taxonomy
	if errorMap.Valid && errorMap.String != "" && errorMap.String != "null" {
		if err := json.Unmarshal([]byte(errorMap.String), &taxonomy); err != nil {
			return domprobe.Definition{}, fmt.Errorf("unmarshal taxonomy of %s: %w", name, err)
		}
	}
	return domprobe.Reconstruct(id, name, description, category.String,
		domprobe.Severity(severity.String), active == 1, taxonomy, createdAt), nil
}

func (r *Repo) queryDefinitions(ctx context.Context, where string) ([]domprobe.Definition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM probe_definitions `+
		where+` ORDER BY created_at, name`)
	if err != nil {
		return nil, storeErr(db.OpSelect, err)
	}
	defer rows.Close()

	defs := []domprobe.Definition{}
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, storeErr(db.OpSelect, err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(db.OpSelect, err)
	}
	return defs, nil
}

// List returns every definition sorted by CreatedAt, then name.
func (r *Repo) List(ctx context.Context) ([]domprobe.Definition, error) {
	return r.queryDefinitions(ctx, "")
}

// ListActive returns the definitions a run schedules.
func (r *Repo) ListActive(ctx context.Context) ([]domprobe.Definition, error) {
	return r.queryDefinitions(ctx, "WHERE is_active = 1")
}

// Get retrieves a definition by id.
func (r *Repo) Get(ctx context.Context, id string) (domprobe.Definition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM probe_definitions WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domprobe.Definition{}, domain.ErrNotFound
	}
	if err != nil {
		return domprobe.Definition{}, storeErr(db.OpSelect, err)
	}
	return d, nil
}

// SetActive toggles whether runs schedule the definition.
func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE probe_definitions SET is_active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return storeErr(db.OpUpdate, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- results ---

const resultColumns = `id, session_id, probe_id, started_at, finished_at, duration_ms, duration_clamped,
	status, error_code, raw, ai_explanation, ai_fix_suggestion, created_at`

// Insert validates and appends a result, assigning its id and creation time.
func (r *Repo) Insert(ctx context.Context, res domresult.Result) (domresult.Result, error) {
	if err := res.Validate(); err != nil {
		return domresult.Result{}, err
	}
	res = res.WithIdentity(r.newID(), r.now())

	var raw sql.NullString
	if p := res.Raw(); p != nil {
		raw = nullable(p.Encode())
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO probe_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID(), res.SessionID(), res.ProbeID(),
		res.StartedAt().UnixNano(), res.FinishedAt().UnixNano(), res.DurationMs(), boolInt(res.DurationClamped()),
		string(res.Status()), nullable(res.ErrorCode()), raw,
		nullablePtr(res.AIExplanation()), nullablePtr(res.AIFixSuggestion()), res.CreatedAt().UnixNano())
	switch {
	case err == nil:
		return res, nil
	case sqlite.IsUniqueViolation(err):
		return domresult.Result{}, domain.NewDuplicateResult(res.SessionID(), res.ProbeID())
	case sqlite.IsForeignKeyViolation(err):
		return domresult.Result{}, fmt.Errorf("definition %s: %w", res.ProbeID(), domain.ErrNotFound)
	default:
		return domresult.Result{}, storeErr(db.OpInsert, err)
	}
}

func scanResult(row rowScanner) (domresult.Result, error) {
	var (
		id, sessionID, probeID, status       string
		startedAt, finishedAt, createdAt     int64
		durationMs                           int64
		clamped                              int
		errorCode, raw, aiExplanation, aiFix sql.NullString
	)
	err := row.Scan(&id, &sessionID, &probeID, &startedAt, &finishedAt, &durationMs, &clamped,
		&status, &errorCode, &raw, &aiExplanation, &aiFix, &createdAt)
	if err != nil {
		return domresult.Result{}, err
	}
	payload, err := domresult.DecodeRaw(raw.String)
	if err != nil {
		return domresult.Result{}, err
	}
	return domresult.Reconstruct(
		id, sessionID, probeID,
		time.Unix(0, startedAt).UTC(), time.Unix(0, finishedAt).UTC(), durationMs, clamped == 1,
		domresult.Status(status), errorCode.String, payload,
		ptr(aiExplanation), ptr(aiFix), time.Unix(0, createdAt).UTC(),
	), nil
}

// BySession returns the results of a session ordered by start time.
func (r *Repo) BySession(ctx context.Context, sessionID string) ([]domresult.Result, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+resultColumns+`
		FROM probe_results WHERE session_id = ? ORDER BY started_at, probe_id`, sessionID)
	if err != nil {
		return nil, storeErr(db.OpSelect, err)
	}
	defer rows.Close()

	results := []domresult.Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, storeErr(db.OpSelect, err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(db.OpSelect, err)
	}
	return results, nil
}

// LatestSessionID returns the session holding the most recently stored result.
// Returns domain.ErrNotFound when no result was ever stored.
func (r *Repo) LatestSessionID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id FROM probe_results ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storeErr(db.OpSelect, err)
	}
	return id, nil
}

// --- ledger ---

// RecordSession stores the ledger entry written at trigger time.
func (r *Repo) RecordSession(ctx context.Context, s domsession.Session) error {
	ids, err := json.Marshal(s.ProbeIDs())
	if err != nil {
		return fmt.Errorf("marshal probe ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO probe_sessions (id, probe_ids, issued_at) VALUES (?, ?, ?)`,
		s.ID(), string(ids), s.IssuedAt().UnixNano())
	if sqlite.IsUniqueViolation(err) {
		return fmt.Errorf("session %s: %w", s.ID(), domain.ErrAlreadyExists)
	}
	if err != nil {
		return storeErr(db.OpInsert, err)
	}
	return nil
}

// GetSession retrieves a ledger entry. Returns domain.ErrNotFound when absent.
func (r *Repo) GetSession(ctx context.Context, id string) (domsession.Session, error) {
	var (
		probeIDs string
		issuedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT probe_ids, issued_at FROM probe_sessions WHERE id = ?`, id).
		Scan(&probeIDs, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domsession.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domsession.Session{}, storeErr(db.OpSelect, err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(probeIDs), &ids); err != nil {
		return domsession.Session{}, fmt.Errorf("unmarshal probe ids: %w", err)
	}
	return domsession.Reconstruct(id, ids, time.Unix(0, issuedAt).UTC()), nil
}
