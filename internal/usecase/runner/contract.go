package runner

import (
	"context"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
	"github.com/kailas-cloud/cvgen/internal/probe"
)

// DefinitionRepository defines the catalog contract used by runs.
type DefinitionRepository interface {
	ListActive(ctx context.Context) ([]domprobe.Definition, error)
	SeedDefaults(ctx context.Context, defs []domprobe.Definition) (int, error)
}

// ResultRepository defines the result store and ledger contract used by runs.
type ResultRepository interface {
	Insert(ctx context.Context, r domresult.Result) (domresult.Result, error)
	RecordSession(ctx context.Context, s domsession.Session) error
}

// Resolver maps a definition name to its executable probe.
type Resolver interface {
	Resolve(name string) (probe.Func, error)
}

// Diagnostician explains a failure.
type Diagnostician interface {
	Diagnose(ctx context.Context, code string, raw domresult.Raw) (domresult.Diagnosis, error)
}
