// Package syncer keeps local leagues, teams, fixtures and odds in step with
// the provider. Every run is best effort: per-item failures are collected on
// the result and never abort the batch.
package syncer

import (
	"context"
	"errors"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/database"
	"sportsync/internal/domain"
	"sportsync/internal/logging"
	"sportsync/internal/metrics"
	"sportsync/internal/models"
	"sportsync/internal/provider"

	"github.com/rs/zerolog"
)

// Fetcher is the request client as seen by the syncers.
type Fetcher interface {
	Request(ctx context.Context, endpoint string, params map[string]string) (*provider.Envelope, error)
}

type Store interface {
	SportID(ctx context.Context, code string) (int64, error)

	FindLeagueByExternalID(ctx context.Context, externalID int64) (*models.League, error)
	CreateLeague(ctx context.Context, l *models.League) error
	UpdateLeague(ctx context.Context, l *models.League) error
	SetLeagueActive(ctx context.Context, externalID int64, active bool) error
	ListLeagues(ctx context.Context, activeOnly bool) ([]models.League, error)

	FindTeamByExternalID(ctx context.Context, externalID, sportID int64) (*models.Team, error)
	CreateTeam(ctx context.Context, t *models.Team) error
	UpdateTeam(ctx context.Context, t *models.Team) error

	FindMatchByExternalID(ctx context.Context, externalID int64) (*models.Match, error)
	GetMatch(ctx context.Context, id int64) (*models.Match, error)
	CreateMatch(ctx context.Context, m *models.Match) error
	UpdateMatch(ctx context.Context, m *models.Match) error
	UpcomingMatchesForOdds(ctx context.Context, from, until time.Time, limit int) ([]models.Match, error)
	LiveMatchesForOdds(ctx context.Context, limit int) ([]models.Match, error)

	BetTypeIDs(ctx context.Context) (map[string]int64, error)
	FindOdds(ctx context.Context, matchID, betTypeID int64, selection, handicap string) (*models.Odds, error)
	CreateOdds(ctx context.Context, o *models.Odds) error
	UpdateOdds(ctx context.Context, o *models.Odds) error
}

// ProgressFunc receives processed/total units of a long run. May be nil.
type ProgressFunc func(processed, total int)

func (f ProgressFunc) report(processed, total int) {
	if f != nil {
		f(processed, total)
	}
}

// Service groups the entity syncers around one fetcher and store.
type Service struct {
	fetcher Fetcher
	store   Store
	cache   domain.Cache
	cfg     config.SyncConfig
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewService wires the syncers. cache holds odds board snapshots and may be nil.
func NewService(fetcher Fetcher, store Store, cache domain.Cache, cfg config.SyncConfig, logger *zerolog.Logger) *Service {
	if cfg.FixtureConcurrency < 1 {
		cfg.FixtureConcurrency = 1
	}
	return &Service{
		fetcher: fetcher,
		store:   store,
		cache:   cache,
		cfg:     cfg,
		logger:  logging.Component(logger, "syncer"),
		now:     time.Now,
	}
}

// ApplyActiveLeagues marks the configured leagues active. Leagues that are
// not known locally yet are activated when the league sync creates them.
func (s *Service) ApplyActiveLeagues(ctx context.Context) error {
	for _, id := range s.cfg.ActiveLeagues {
		err := s.store.SetLeagueActive(ctx, id, true)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) season(requested int) int {
	if requested > 0 {
		return requested
	}
	if s.cfg.Season > 0 {
		return s.cfg.Season
	}
	return s.now().UTC().Year()
}

func (s *Service) finish(r *models.SyncResult, started time.Time) *models.SyncResult {
	r.Finish()
	metrics.AddSyncItems(r.Entity, r.Created, r.Updated, r.Skipped)
	s.logger.Info().
		Str("entity", r.Entity).
		Int("fetched", r.TotalFetched).
		Int("created", r.Created).
		Int("updated", r.Updated).
		Int("unchanged", r.Unchanged).
		Int("skipped", r.Skipped).
		Int("errors", len(r.Errors)).
		Dur("took", time.Since(started)).
		Msg("sync finished")
	return r
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
