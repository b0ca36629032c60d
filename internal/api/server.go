package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/jobs"
	"sportsync/internal/logging"
	"sportsync/internal/models"
	"sportsync/internal/odds"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// JobService is the job lifecycle surface exposed over HTTP.
type JobService interface {
	CreateJob(ctx context.Context, req jobs.CreateRequest) (*models.SyncJob, bool, error)
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]models.SyncJob, int, error)
	Stats(ctx context.Context) (*models.JobStats, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	ForceReleaseJob(ctx context.Context, id string) (bool, error)
	ForceReleaseByType(ctx context.Context, jobType models.JobType) (int, error)
	RetryJob(ctx context.Context, id string, triggeredBy string) (*models.SyncJob, bool, error)
	CleanupOldJobs(ctx context.Context, days int) (int64, error)
	QueueCounts(ctx context.Context) (*models.QueueCounts, error)
}

// SyncService runs syncs inline and serves cached odds boards.
type SyncService interface {
	jobs.Runner
	Board(ctx context.Context, matchID int64) (*odds.Row, bool, error)
}

type ProviderService interface {
	Reload(ctx context.Context) (*models.DataProvider, error)
	InvalidateCache(ctx context.Context, prefix string) (int, error)
}

// StoreReader serves read-only views over synced data and request logs.
type StoreReader interface {
	EntityCounts(ctx context.Context) (map[string]int, error)
	ListRequestLogs(ctx context.Context, endpoint string, limit int) ([]models.APIRequestLog, error)
}

// HealthCheck reports an unhealthy dependency by returning an error.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Jobs     JobService
	Sync     SyncService
	Provider ProviderService
	Store    StoreReader
	Checks   map[string]HealthCheck
}

// Server is the HTTP control surface of the sync engine.
type Server struct {
	cfg    config.APIConfig
	deps   Deps
	auth   *Auth
	logger *zerolog.Logger
	router chi.Router
	server *http.Server
	now    func() time.Time
}

func NewServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		auth:   NewAuth(cfg),
		logger: logging.Component(logger, "http"),
		now:    time.Now,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	origins := s.cfg.HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", s.auth.header},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate)

		r.Route("/jobs", func(r chi.Router) {
			r.With(s.auth.Require(PermJobsRead)).Get("/", s.handleListJobs)
			r.With(s.auth.Require(PermJobsWrite)).Post("/", s.handleCreateJob)
			r.With(s.auth.Require(PermJobsRead)).Get("/stats", s.handleJobStats)
			r.With(s.auth.Require(PermJobsRead)).Get("/export.xlsx", s.handleExportJobs)
			r.With(s.auth.Require(PermJobsWrite)).Post("/force-release", s.handleForceReleaseByType)
			r.With(s.auth.Require(PermJobsWrite)).Post("/cleanup", s.handleCleanup)

			r.Route("/{id}", func(r chi.Router) {
				r.With(s.auth.Require(PermJobsRead)).Get("/", s.handleGetJob)
				r.With(s.auth.Require(PermJobsWrite)).Post("/cancel", s.handleCancelJob)
				r.With(s.auth.Require(PermJobsWrite)).Post("/force-release", s.handleForceRelease)
				r.With(s.auth.Require(PermJobsWrite)).Post("/retry", s.handleRetryJob)
			})
		})
		r.With(s.auth.Require(PermJobsRead)).Get("/queue", s.handleQueue)

		r.Route("/sync", func(r chi.Router) {
			r.Use(s.auth.Require(PermSyncRun))
			r.Post("/leagues", s.handleSyncLeagues)
			r.Post("/teams", s.handleSyncTeams)
			r.Post("/fixtures", s.handleSyncFixtures)
			r.Post("/odds", s.handleSyncOdds)
		})

		r.With(s.auth.Require(PermOddsRead)).Get("/odds/{matchId}/board", s.handleOddsBoard)
		r.With(s.auth.Require(PermAdmin)).Get("/provider", s.handleProvider)
		r.With(s.auth.Require(PermAdmin)).Get("/provider/requests", s.handleRequestLogs)
		r.With(s.auth.Require(PermJobsRead)).Get("/entities", s.handleEntityCounts)
		r.With(s.auth.Require(PermAdmin)).Post("/cache/invalidate", s.handleInvalidateCache)
	})
	return r
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
