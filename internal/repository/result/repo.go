package result

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
)

// store is the consumer interface for results and the session ledger (ISP).
//
//nolint:interfacebloat // results need hash, guard, set and sorted-set operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZTop(ctx context.Context, key string, n int) ([]string, error)
}

// Repo implements the append-only result store over a key-value backend.
type Repo struct {
	store store
	keys  domain.Keyspace
	now   func() time.Time
	newID func() string
}

// New creates a result repository.
func New(s store, keys domain.Keyspace) *Repo {
	return &Repo{store: s, keys: keys, now: time.Now, newID: uuid.NewString}
}

// Insert validates and appends a result, assigning its id and creation time.
// The probe must reference an existing definition and the (session, probe)
// pair must not have a stored result yet.
func (r *Repo) Insert(ctx context.Context, res domresult.Result) (domresult.Result, error) {
	if err := res.Validate(); err != nil {
		return domresult.Result{}, err
	}

	exists, err := r.store.Exists(ctx, r.keys.Definition(res.ProbeID()))
	if err != nil {
		return domresult.Result{}, fmt.Errorf("check definition: %w", err)
	}
	if !exists {
		return domresult.Result{}, fmt.Errorf("definition %s: %w", res.ProbeID(), domain.ErrNotFound)
	}

	res = res.WithIdentity(r.newID(), r.now())

	lockKey := r.keys.ResultLock(res.SessionID(), res.ProbeID())
	acquired, err := r.store.SetNX(ctx, lockKey, []byte(res.ID()))
	if err != nil {
		return domresult.Result{}, fmt.Errorf("reserve result: %w", err)
	}
	if !acquired {
		return domresult.Result{}, domain.NewDuplicateResult(res.SessionID(), res.ProbeID())
	}

	// HSET result, release the guard on error
	resultKey := r.keys.Result(res.ID())
	if err := r.store.HSet(ctx, resultKey, resultToHash(res)); err != nil {
		cleanupErr := r.store.Del(ctx, lockKey)
		return domresult.Result{}, errors.Join(fmt.Errorf("hset result: %w", err), cleanupErr)
	}
	if err := r.store.SAdd(ctx, r.keys.SessionResults(res.SessionID()), res.ID()); err != nil {
		return domresult.Result{}, errors.Join(fmt.Errorf("index result in session: %w", err),
			r.rollback(ctx, resultKey, lockKey))
	}
	score := float64(res.CreatedAt().UnixMicro())
	if err := r.store.ZAdd(ctx, r.keys.Sessions(), score, res.SessionID()); err != nil {
		return domresult.Result{}, errors.Join(fmt.Errorf("index session: %w", err),
			r.rollback(ctx, resultKey, lockKey))
	}
	return res, nil
}

// rollback drops a partially indexed result and its guard so the pair can be retried.
// A session set entry left behind points at a missing hash, which BySession skips.
func (r *Repo) rollback(ctx context.Context, resultKey, lockKey string) error {
	return errors.Join(r.store.Del(ctx, resultKey), r.store.Del(ctx, lockKey))
}

// BySession returns the results of a session ordered by start time.
// A session without results yields an empty slice.
func (r *Repo) BySession(ctx context.Context, sessionID string) ([]domresult.Result, error) {
	ids, err := r.store.SMembers(ctx, r.keys.SessionResults(sessionID))
	if err != nil {
		return nil, fmt.Errorf("smembers session %s: %w", sessionID, err)
	}
	if len(ids) == 0 {
		return []domresult.Result{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keys.Result(id)
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi results: %w", err)
	}

	results := make([]domresult.Result, 0, len(rows))
	for i, m := range rows {
		if len(m) == 0 {
			continue
		}
		res, err := resultFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse result %s: %w", ids[i], err)
		}
		results = append(results, res)
	}
	domsession.SortResults(results)
	return results, nil
}

// LatestSessionID returns the session holding the most recently stored result.
// Returns domain.ErrNotFound when no result was ever stored.
func (r *Repo) LatestSessionID(ctx context.Context) (string, error) {
	top, err := r.store.ZTop(ctx, r.keys.Sessions(), 1)
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	if len(top) == 0 {
		return "", domain.ErrNotFound
	}
	return top[0], nil
}

// RecordSession stores the ledger entry written at trigger time.
func (r *Repo) RecordSession(ctx context.Context, s domsession.Session) error {
	hash, err := sessionToHash(s)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, r.keys.Session(s.ID()), hash); err != nil {
		return fmt.Errorf("hset session %s: %w", s.ID(), err)
	}
	return nil
}

// GetSession retrieves a ledger entry. Returns domain.ErrNotFound when absent.
func (r *Repo) GetSession(ctx context.Context, id string) (domsession.Session, error) {
	m, err := r.store.HGetAll(ctx, r.keys.Session(id))
	if err != nil {
		return domsession.Session{}, fmt.Errorf("hgetall session %s: %w", id, err)
	}
	if len(m) == 0 {
		return domsession.Session{}, domain.ErrNotFound
	}
	return sessionFromHash(m)
}
