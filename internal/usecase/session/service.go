package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
)

// Detail is a session report with the definitions its results reference.
type Detail struct {
	domsession.Report
	Definitions map[string]domprobe.Definition
}

// Definition returns the catalog entry for a probe id, if known.
func (d Detail) Definition(probeID string) (domprobe.Definition, bool) {
	def, ok := d.Definitions[probeID]
	return def, ok
}

// Service answers session and catalog queries.
type Service struct {
	results ResultRepository
	defs    DefinitionRepository
}

// New creates a session query service.
func New(results ResultRepository, defs DefinitionRepository) *Service {
	return &Service{results: results, defs: defs}
}

// Get returns a session with the results stored so far.
// An id that was never issued and has no results is domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	id, err := domsession.ParseID(id)
	if err != nil {
		return Detail{}, err
	}

	var ledger *domsession.Session
	entry, err := s.results.GetSession(ctx, id)
	switch {
	case err == nil:
		ledger = &entry
	case !errors.Is(err, domain.ErrNotFound):
		return Detail{}, fmt.Errorf("get session %s: %w", id, err)
	}

	results, err := s.results.BySession(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("results of session %s: %w", id, err)
	}
	if ledger == nil && len(results) == 0 {
		return Detail{}, domain.ErrNotFound
	}
	domsession.SortResults(results)

	defs, err := s.index(ctx)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		Report:      domsession.Report{ID: id, Ledger: ledger, Results: results},
		Definitions: defs,
	}, nil
}

// Latest returns the session holding the most recently stored result.
// Returns domain.ErrNotFound when no result was ever stored.
func (s *Service) Latest(ctx context.Context) (Detail, error) {
	id, err := s.results.LatestSessionID(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Detail{}, err
		}
		return Detail{}, fmt.Errorf("latest session: %w", err)
	}
	return s.Get(ctx, id)
}

// Definitions returns the active catalog.
func (s *Service) Definitions(ctx context.Context) ([]domprobe.Definition, error) {
	defs, err := s.defs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}
	return defs, nil
}

// SetActive activates or deactivates a definition for future runs.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (domprobe.Definition, error) {
	if err := s.defs.SetActive(ctx, id, active); err != nil {
		return domprobe.Definition{}, err
	}
	defs, err := s.index(ctx)
	if err != nil {
		return domprobe.Definition{}, err
	}
	d, ok := defs[id]
	if !ok {
		return domprobe.Definition{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *Service) index(ctx context.Context) (map[string]domprobe.Definition, error) {
	all, err := s.defs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	m := make(map[string]domprobe.Definition, len(all))
	for _, d := range all {
		m[d.ID()] = d
	}
	return m, nil
}
