package health

import (
	"context"
	"sync"
	"time"
)

// Status is the liveness verdict for this process.
type Status string

const (
	// Healthy means every dependency answered.
	Healthy Status = "healthy"
	// Degraded means an optional dependency (the AI provider) is down.
	Degraded Status = "degraded"
	// Unhealthy means the store is unreachable.
	Unhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one dependency check.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

const (
	checkDatabase = "database"
	checkAI       = "ai"

	defaultCheckTimeout = 3 * time.Second
)

// Report is the per-dependency liveness breakdown.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type dependency struct {
	name     string
	required bool
	check    func(context.Context) error
}

// Service checks the process's own dependencies.
type Service struct {
	deps    []dependency
	timeout time.Duration
}

// New creates a Service. ai can be nil when no provider is configured.
func New(db DBPinger, ai AIChecker) *Service {
	deps := []dependency{{name: checkDatabase, required: true, check: db.Ping}}
	if ai != nil {
		deps = append(deps, dependency{name: checkAI, check: ai.HealthCheck})
	}
	return &Service{deps: deps, timeout: defaultCheckTimeout}
}

// Check runs every dependency check in parallel, each under its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.deps))

	var wg sync.WaitGroup
	for i, d := range s.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			results[i] = CheckOK
			if err := d.check(cctx); err != nil {
				results[i] = CheckError
			}
		}()
	}
	wg.Wait()

	r := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.deps))}
	for i, d := range s.deps {
		r.Checks[d.name] = results[i]
		if results[i] == CheckOK {
			continue
		}
		if d.required {
			r.Status = Unhealthy
		} else if r.Status == Healthy {
			r.Status = Degraded
		}
	}
	return r
}
