package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
	"github.com/kailas-cloud/cvgen/internal/metrics"
	"github.com/kailas-cloud/cvgen/internal/probe"
)

// Config bounds a run.
type Config struct {
	Target           probe.TargetConfig
	DiagnosisTimeout time.Duration
	// RunTimeout bounds probe and diagnosis work only. Persisting a result
	// is bounded separately by StoreTimeout so an expired run still writes its rows.
	RunTimeout   time.Duration
	StoreTimeout time.Duration
	// MaxParallel caps concurrently running probes; 0 runs all at once.
	MaxParallel int
}

// Ticket is returned by Trigger before any probe runs.
type Ticket struct {
	SessionID string
	Scheduled int
}

// Summary describes a finished run.
type Summary struct {
	SessionID   string
	Scheduled   int
	Passed      int
	Failed      int
	StoreErrors int
}

// Service triggers and executes probe sessions.
type Service struct {
	defs     DefinitionRepository
	results  ResultRepository
	resolver Resolver
	diag     Diagnostician
	cfg      Config
	logger   *zap.Logger

	now   func() time.Time
	seed  singleflight.Group
	runs  sync.WaitGroup
	onRun func(Summary)
}

// New creates a runner service. diag can be nil, in which case failures are never diagnosed.
func New(
	defs DefinitionRepository, results ResultRepository,
	resolver Resolver, diag Diagnostician, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.DiagnosisTimeout <= 0 {
		cfg.DiagnosisTimeout = 15 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		defs:     defs,
		results:  results,
		resolver: resolver,
		diag:     diag,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Trigger mints a session, records the probes it schedules and starts the run
// in the background. The run outlives ctx.
func (s *Service) Trigger(ctx context.Context) (Ticket, error) {
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return Ticket{}, err
	}

	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID()
	}
	sess, err := domsession.New(domsession.NewID(), ids, s.now())
	if err != nil {
		return Ticket{}, fmt.Errorf("new session: %w", err)
	}
	if err := s.results.RecordSession(ctx, sess); err != nil {
		return Ticket{}, fmt.Errorf("record session: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		runCtx, cancel := context.WithTimeout(runCtx, s.cfg.RunTimeout)
		defer cancel()
		summary := s.Run(runCtx, sess.ID(), defs)
		if s.onRun != nil {
			s.onRun(summary)
		}
	}()

	s.logger.Info("Probe session triggered",
		zap.String("session_id", sess.ID()),
		zap.Int("scheduled", sess.Scheduled()),
	)
	return Ticket{SessionID: sess.ID(), Scheduled: sess.Scheduled()}, nil
}

// Wait blocks until every background run has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}

// activeDefinitions loads the active catalog, seeding the defaults when it is empty.
// Concurrent triggers share one seeding attempt.
func (s *Service) activeDefinitions(ctx context.Context) ([]domprobe.Definition, error) {
	defs, err := s.defs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}
	if len(defs) > 0 {
		return defs, nil
	}

	// The seed is shared by every waiting caller, so it must not die with the first one's request.
	seedCtx := context.WithoutCancel(ctx)
	_, err, _ = s.seed.Do("defaults", func() (any, error) {
		n, err := s.defs.SeedDefaults(seedCtx, domprobe.Defaults())
		if err != nil {
			return nil, err
		}
		s.logger.Info("Seeded default probe definitions", zap.Int("inserted", n))
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed definitions: %w", err)
	}

	defs, err = s.defs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}
	return defs, nil
}

// Run executes defs concurrently for sessionID and persists one result per definition.
// It returns once every probe has finished.
func (s *Service) Run(ctx context.Context, sessionID string, defs []domprobe.Definition) Summary {
	log := s.logger.With(zap.String("session_id", sessionID))
	start := s.now()

	target, targetErr := probe.NewTarget(s.cfg.Target)

	var (
		mu      sync.Mutex
		summary = Summary{SessionID: sessionID, Scheduled: len(defs)}
	)

	var g errgroup.Group
	if s.cfg.MaxParallel > 0 {
		g.SetLimit(s.cfg.MaxParallel)
	}
	for _, def := range defs {
		g.Go(func() error {
			res, err := s.execute(ctx, log, sessionID, def, target, targetErr)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.StoreErrors++
			case res.Passed():
				summary.Passed++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	status := "passed"
	switch {
	case summary.StoreErrors > 0:
		status = "error"
	case summary.Failed > 0:
		status = "failed"
	}
	metrics.ProbeRunsTotal.WithLabelValues(status).Inc()

	log.Info("Probe session finished",
		zap.String("status", status),
		zap.Int("scheduled", summary.Scheduled),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("store_errors", summary.StoreErrors),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return summary
}

// execute runs one probe and persists its result. The returned error is a store failure.
func (s *Service) execute(
	ctx context.Context, log *zap.Logger, sessionID string,
	def domprobe.Definition, target *probe.Target, targetErr error,
) (domresult.Result, error) {
	log = log.With(zap.String("probe", def.Name()), zap.String("probe_id", def.ID()))
	log.Debug("Probe running")

	started := s.now()
	err := targetErr
	if err == nil {
		err = s.invoke(ctx, def, target)
	}

	var res domresult.Result
	if err == nil {
		res = domresult.Pass(sessionID, def.ID(), started, s.now())
	} else {
		code := probe.CodeOf(err)
		if targetErr != nil {
			code = domprobe.CodeUnreachable
		}
		raw := domresult.Raw{Error: err.Error()}
		var pe *panicError
		if errors.As(err, &pe) {
			raw.Stack = pe.stack
		}
		log.Info("Probe failed",
			zap.String("failure_class", "probe"),
			zap.String("error_code", code),
			zap.Error(err),
		)

		diag, ok := s.diagnose(ctx, log, code, raw)
		res = domresult.Fail(sessionID, def.ID(), started, s.now(), code, raw)
		if ok {
			res = res.WithDiagnosis(diag)
		}
	}
	if res.DurationClamped() {
		log.Warn("Clock went backwards, duration clamped to 0")
	}

	metrics.ProbeResultsTotal.WithLabelValues(def.Name(), string(res.Status())).Inc()
	metrics.ProbeDuration.WithLabelValues(def.Name()).Observe(float64(res.DurationMs()) / 1000)

	stored, err := s.persist(ctx, res)
	if err != nil {
		metrics.ProbeStoreErrorsTotal.Inc()
		log.Error("Probe result not persisted",
			zap.String("failure_class", "store"),
			zap.String("status", string(res.Status())),
			zap.Error(err),
		)
		return res, fmt.Errorf("insert result: %w", err)
	}

	log.Debug("Probe finished",
		zap.String("status", string(stored.Status())),
		zap.Int64("duration_ms", stored.DurationMs()),
	)
	return stored, nil
}

// persist writes res even when the run deadline has already passed.
func (s *Service) persist(ctx context.Context, res domresult.Result) (domresult.Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	return s.results.Insert(ctx, res) //nolint:wrapcheck // wrapped by the caller
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("probe panicked: %v", e.value) }

// invoke resolves and calls the probe, turning a panic into a coded failure.
func (s *Service) invoke(ctx context.Context, def domprobe.Definition, target *probe.Target) (err error) {
	fn, err := s.resolver.Resolve(def.Name())
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = probe.Fail(domprobe.CodePanic, &panicError{value: r, stack: string(debug.Stack())})
		}
	}()
	return fn(ctx, target)
}

// diagnose calls the diagnostician inside its own failure boundary: a timeout,
// an error or a panic all yield ok=false and never reach the caller.
func (s *Service) diagnose(
	ctx context.Context, log *zap.Logger, code string, raw domresult.Raw,
) (domresult.Diagnosis, bool) {
	if s.diag == nil {
		return domresult.Diagnosis{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DiagnosisTimeout)
	defer cancel()

	type outcome struct {
		diag   domresult.Diagnosis
		err    error
		status string
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("diagnostician panicked: %v", r), status: "panic"}
			}
		}()
		d, err := s.diag.Diagnose(ctx, code, raw)
		done <- outcome{diag: d, err: err, status: "error"}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o = outcome{err: ctx.Err(), status: "timeout"}
	}

	if o.err == nil {
		metrics.DiagnosisRequestsTotal.WithLabelValues("ok").Inc()
		return o.diag, true
	}
	if errors.Is(o.err, domain.ErrDiagnosisUnavailable) && o.status == "error" {
		o.status = "unavailable"
	}
	metrics.DiagnosisRequestsTotal.WithLabelValues(o.status).Inc()
	log.Warn("Diagnosis skipped",
		zap.String("failure_class", "diagnosis"),
		zap.String("reason", o.status),
		zap.Error(o.err),
	)
	return domresult.Diagnosis{}, false
}
