package health

import (
	"context"

	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// AIChecker checks AI provider availability.
type AIChecker interface {
	HealthCheck(ctx context.Context) error
}

// ResultReader reads the most recent session's results.
type ResultReader interface {
	LatestSessionID(ctx context.Context) (string, error)
	BySession(ctx context.Context, sessionID string) ([]domresult.Result, error)
}
