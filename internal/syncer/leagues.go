package syncer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sportsync/internal/models"

	mapset "github.com/deckarep/golang-set/v2"
)

const entityLeagues = "leagues"

// SyncLeagues upserts every league the provider lists for the season.
// Leagues created here start active only if configured as active.
func (s *Service) SyncLeagues(ctx context.Context, p models.LeagueParams, progress ProgressFunc) (*models.SyncResult, error) {
	started := time.Now()
	result := models.NewSyncResult(entityLeagues)
	season := s.season(p.Season)

	sportID, err := s.store.SportID(ctx, s.cfg.Sport)
	if err != nil {
		return nil, fmt.Errorf("resolve sport %s: %w", s.cfg.Sport, err)
	}

	params := map[string]string{"season": strconv.Itoa(season)}
	if p.Country != "" {
		params["country"] = p.Country
	}
	env, err := s.fetcher.Request(ctx, "/leagues", params)
	if err != nil {
		return nil, fmt.Errorf("fetch leagues: %w", err)
	}
	var items []apiLeagueItem
	if err := env.Decode(&items); err != nil {
		return nil, err
	}

	active := mapset.NewSet[int64](s.cfg.ActiveLeagues...)
	result.TotalFetched = len(items)
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := it.toLeague(sportID, season)
		if next.ExternalID == 0 {
			result.Skipped++
			continue
		}
		s.upsertLeague(ctx, &next, active.Contains(next.ExternalID), result)
		progress.report(i+1, len(items))
	}
	return s.finish(result, started), nil
}

func (s *Service) upsertLeague(ctx context.Context, next *models.League, active bool, result *models.SyncResult) {
	cur, err := s.store.FindLeagueByExternalID(ctx, next.ExternalID)
	switch {
	case isNotFound(err):
		next.IsActive = active
		if err := s.store.CreateLeague(ctx, next); err != nil {
			result.AddError("league %d: %v", next.ExternalID, err)
			return
		}
		result.Created++
	case err != nil:
		result.AddError("league %d: %v", next.ExternalID, err)
	case leagueChanged(cur, next):
		next.ID = cur.ID
		if err := s.store.UpdateLeague(ctx, next); err != nil {
			result.AddError("league %d: %v", next.ExternalID, err)
			return
		}
		result.Updated++
	default:
		result.Unchanged++
	}
}
