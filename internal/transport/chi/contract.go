package chi

import (
	"context"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	healthuc "github.com/kailas-cloud/cvgen/internal/usecase/health"
	runneruc "github.com/kailas-cloud/cvgen/internal/usecase/runner"
	sessionuc "github.com/kailas-cloud/cvgen/internal/usecase/session"
)

// Runner starts probe sessions.
type Runner interface {
	Trigger(ctx context.Context) (runneruc.Ticket, error)
}

// Sessions answers session and catalog queries.
type Sessions interface {
	Get(ctx context.Context, id string) (sessionuc.Detail, error)
	Latest(ctx context.Context) (sessionuc.Detail, error)
	Definitions(ctx context.Context) ([]domprobe.Definition, error)
	SetActive(ctx context.Context, id string, active bool) (domprobe.Definition, error)
}

// HealthAggregator computes the product health signal.
type HealthAggregator interface {
	Check(ctx context.Context) healthuc.Signal
}

// Liveness reports the process's own dependencies.
type Liveness interface {
	Check(ctx context.Context) healthuc.Report
}
