package definition

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
)

// store is the consumer interface for probe definitions (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// Repo implements the definition store over a key-value backend.
type Repo struct {
	store store
	keys  domain.Keyspace
}

// New creates a definition repository.
func New(s store, keys domain.Keyspace) *Repo {
	return &Repo{store: s, keys: keys}
}

// SeedDefaults inserts defs whose name is not yet taken and returns how many were written.
// A name that is already reserved, by an earlier seed or a concurrent one, is skipped.
func (r *Repo) SeedDefaults(ctx context.Context, defs []domprobe.Definition) (int, error) {
	inserted := 0
	for _, d := range defs {
		hash, err := definitionToHash(d)
		if err != nil {
			return inserted, err
		}

		nameKey := r.keys.DefinitionName(d.Name())
		acquired, err := r.store.SetNX(ctx, nameKey, []byte(d.ID()))
		if err != nil {
			return inserted, fmt.Errorf("reserve definition %s: %w", d.Name(), err)
		}
		if !acquired {
			continue
		}

		// HSET definition, release the name on error
		if err := r.store.HSet(ctx, r.keys.Definition(d.ID()), hash); err != nil {
			cleanupErr := r.store.Del(ctx, nameKey)
			return inserted, errors.Join(fmt.Errorf("hset definition %s: %w", d.Name(), err), cleanupErr)
		}
		inserted++
	}
	return inserted, nil
}

// Get retrieves a definition by id.
func (r *Repo) Get(ctx context.Context, id string) (domprobe.Definition, error) {
	m, err := r.store.HGetAll(ctx, r.keys.Definition(id))
	if err != nil {
		return domprobe.Definition{}, fmt.Errorf("hgetall definition %s: %w", id, err)
	}
	if len(m) == 0 {
		return domprobe.Definition{}, domain.ErrNotFound
	}
	return definitionFromHash(m)
}

// List returns every definition sorted by CreatedAt, then name.
func (r *Repo) List(ctx context.Context) ([]domprobe.Definition, error) {
	keys, err := r.store.Scan(ctx, r.keys.Definition("*"))
	if err != nil {
		return nil, fmt.Errorf("scan definitions: %w", err)
	}
	if len(keys) == 0 {
		return []domprobe.Definition{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi definitions: %w", err)
	}

	defs := make([]domprobe.Definition, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		d, err := definitionFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse definition %s: %w", keys[i], err)
		}
		defs = append(defs, d)
	}

	sort.Slice(defs, func(i, j int) bool {
		if defs[i].CreatedAt() != defs[j].CreatedAt() {
			return defs[i].CreatedAt() < defs[j].CreatedAt()
		}
		return defs[i].Name() < defs[j].Name()
	})
	return defs, nil
}

// ListActive returns the definitions a run schedules.
func (r *Repo) ListActive(ctx context.Context) ([]domprobe.Definition, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]domprobe.Definition, 0, len(all))
	for _, d := range all {
		if d.Active() {
			active = append(active, d)
		}
	}
	return active, nil
}

// SetActive toggles whether runs schedule the definition.
func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	key := r.keys.Definition(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("hgetall definition %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.ErrNotFound
	}
	value := "0"
	if active {
		value = "1"
	}
	if err := r.store.HSet(ctx, key, map[string]string{"active": value}); err != nil {
		return fmt.Errorf("hset definition %s: %w", id, err)
	}
	return nil
}
