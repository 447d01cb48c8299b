package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvgen/internal/config"
	dbRedis "github.com/kailas-cloud/cvgen/internal/db/redis"
	"github.com/kailas-cloud/cvgen/internal/db/sqlite"
	"github.com/kailas-cloud/cvgen/internal/domain"
	logpkg "github.com/kailas-cloud/cvgen/internal/logger"
	"github.com/kailas-cloud/cvgen/internal/metrics"
	"github.com/kailas-cloud/cvgen/internal/probe"
	definitionrepo "github.com/kailas-cloud/cvgen/internal/repository/definition"
	resultrepo "github.com/kailas-cloud/cvgen/internal/repository/result"
	"github.com/kailas-cloud/cvgen/internal/repository/sqlstore"
	chiTransport "github.com/kailas-cloud/cvgen/internal/transport/chi"
	openaiDiag "github.com/kailas-cloud/cvgen/internal/transport/openai"
	"github.com/kailas-cloud/cvgen/internal/transport/ws"
	healthuc "github.com/kailas-cloud/cvgen/internal/usecase/health"
	runneruc "github.com/kailas-cloud/cvgen/internal/usecase/runner"
	sessionuc "github.com/kailas-cloud/cvgen/internal/usecase/session"
	"github.com/kailas-cloud/cvgen/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting cvgen probe server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("probe_target", cfg.Probes.TargetURL),
		zap.Bool("ai_enabled", cfg.AI.Enabled()),
	)

	ctx := context.Background()
	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.close()
	logger.Info("Connected to database")

	// Register probe metrics explicitly (no init())
	metrics.RegisterProbeMetrics()

	// Pass nil interface (not typed nil pointer!) when AI is not configured.
	var (
		diag      runneruc.Diagnostician = openaiDiag.Unavailable{}
		aiChecker healthuc.AIChecker
	)
	if cfg.AI.Enabled() {
		d := openaiDiag.NewDiagnostician(&openaiDiag.Config{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Logger:  logger,
		})
		diag, aiChecker = d, d
	}

	runnerSvc := runneruc.New(store.defs, store.results, probe.Builtins(), diag, runneruc.Config{
		Target: probe.TargetConfig{
			BaseURL:        cfg.Probes.TargetURL,
			HealthPath:     cfg.Probes.HealthPath,
			OpenAPIPath:    cfg.Probes.OpenAPIPath,
			WebSocketPath:  cfg.Probes.WebSocketPath,
			RequestTimeout: time.Duration(cfg.Probes.RequestTimeoutSec) * time.Second,
		},
		DiagnosisTimeout: time.Duration(cfg.AI.TimeoutSec) * time.Second,
		RunTimeout:       time.Duration(cfg.Probes.RunTimeoutSec) * time.Second,
		MaxParallel:      cfg.Probes.MaxParallel,
	}, logger)
	sessionSvc := sessionuc.New(store.results, store.defs)
	aggregator := healthuc.NewAggregator(store.results, logger)
	liveness := healthuc.New(store.pinger, aiChecker)

	server := chiTransport.NewServer(runnerSvc, sessionSvc, aggregator, liveness, logger)
	hub := ws.NewHub(logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Handle("/ws", hub)
	chiTransport.HandlerWithOptions(server, chiTransport.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: chiTransport.BadRequestHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// Shutdown does not track hijacked connections.
	hub.Close()
	if err := runnerSvc.Wait(shutdownCtx); err != nil {
		logger.Warn("Probe runs still in flight at shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// definitionStore is the catalog contract shared by the runner and the query side.
type definitionStore interface {
	runneruc.DefinitionRepository
	sessionuc.DefinitionRepository
}

// resultStore is the result and ledger contract shared by the runner, the query side and health.
type resultStore interface {
	runneruc.ResultRepository
	sessionuc.ResultRepository
}

type storage struct {
	defs    definitionStore
	results resultStore
	pinger  healthuc.DBPinger
	close   func()
}

// openStorage picks the backend by driver. sqlite runs embedded; redis and valkey share the rueidis store.
func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		d, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return storage{}, fmt.Errorf("open sqlite %s: %w", cfg.Database.Path, err)
		}
		repo := sqlstore.New(d)
		return storage{defs: repo, results: repo, pinger: d, close: d.Close}, nil

	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return storage{}, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			s.Close()
			return storage{}, fmt.Errorf("database not ready: %w", err)
		}
		keys := domain.NewKeyspace(cfg.Storage.KeyPrefix)
		return storage{
			defs:    definitionrepo.New(s, keys),
			results: resultrepo.New(s, keys),
			pinger:  s,
			close:   s.Close,
		}, nil

	default:
		return storage{}, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorResponseCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Upgraded sockets log when they close, long after the handshake.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
