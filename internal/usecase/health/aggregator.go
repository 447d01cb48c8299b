package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvgen/internal/domain"
)

// Verdict is the product health signal derived from the latest probe session.
type Verdict string

const (
	// VerdictHealthy means the latest session exists and every result passed.
	VerdictHealthy Verdict = "healthy"
	// VerdictUnhealthy covers everything else, including no data at all.
	VerdictUnhealthy Verdict = "unhealthy"
)

// Signal is the aggregated answer with the time it was computed.
type Signal struct {
	Status    Verdict
	CheckedAt time.Time
	SessionID string
	Failed    []string
}

// Aggregator answers healthy/unhealthy from the most recent session only. It fails closed.
type Aggregator struct {
	results ResultReader
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator creates a health aggregator.
func NewAggregator(results ResultReader, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{results: results, logger: logger, now: time.Now}
}

// Check computes the signal. Store errors yield unhealthy and are logged, never returned.
func (a *Aggregator) Check(ctx context.Context) Signal {
	sig := Signal{Status: VerdictUnhealthy, CheckedAt: a.now().UTC()}

	id, err := a.results.LatestSessionID(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Error("Health aggregation failed", zap.String("failure_class", "store"), zap.Error(err))
		}
		return sig
	}
	sig.SessionID = id

	results, err := a.results.BySession(ctx, id)
	if err != nil {
		a.logger.Error("Health aggregation failed",
			zap.String("failure_class", "store"),
			zap.String("session_id", id),
			zap.Error(err),
		)
		return sig
	}
	if len(results) == 0 {
		return sig
	}

	for _, r := range results {
		if !r.Passed() {
			sig.Failed = append(sig.Failed, r.ProbeID())
		}
	}
	if len(sig.Failed) == 0 {
		sig.Status = VerdictHealthy
	}
	return sig
}
