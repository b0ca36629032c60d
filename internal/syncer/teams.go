package syncer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sportsync/internal/models"
)

const entityTeams = "teams"

// SyncTeams upserts the teams of one league, or of every active league when
// no league is given. A failed league is recorded and the rest continue.
func (s *Service) SyncTeams(ctx context.Context, p models.TeamParams, progress ProgressFunc) (*models.SyncResult, error) {
	started := time.Now()
	result := models.NewSyncResult(entityTeams)
	season := s.season(p.Season)

	sportID, err := s.store.SportID(ctx, s.cfg.Sport)
	if err != nil {
		return nil, fmt.Errorf("resolve sport %s: %w", s.cfg.Sport, err)
	}

	var leagueIDs []int64
	if p.LeagueExternalID != 0 {
		leagueIDs = []int64{p.LeagueExternalID}
	} else {
		leagues, err := s.store.ListLeagues(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("list active leagues: %w", err)
		}
		for _, l := range leagues {
			leagueIDs = append(leagueIDs, l.ExternalID)
		}
	}

	for i, leagueID := range leagueIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.syncLeagueTeams(ctx, leagueID, season, sportID, result)
		progress.report(i+1, len(leagueIDs))
	}
	return s.finish(result, started), nil
}

func (s *Service) syncLeagueTeams(ctx context.Context, leagueID int64, season int, sportID int64, result *models.SyncResult) {
	env, err := s.fetcher.Request(ctx, "/teams", map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
		"season": strconv.Itoa(season),
	})
	if err != nil {
		result.AddError("teams of league %d: %v", leagueID, err)
		return
	}
	var items []apiTeamItem
	if err := env.Decode(&items); err != nil {
		result.AddError("teams of league %d: %v", leagueID, err)
		return
	}

	result.TotalFetched += len(items)
	for _, it := range items {
		next := it.toTeam(sportID)
		if next.ExternalID == 0 {
			result.Skipped++
			continue
		}
		s.upsertTeam(ctx, &next, result)
	}
}

func (s *Service) upsertTeam(ctx context.Context, next *models.Team, result *models.SyncResult) {
	cur, err := s.store.FindTeamByExternalID(ctx, next.ExternalID, next.SportID)
	switch {
	case isNotFound(err):
		if err := s.store.CreateTeam(ctx, next); err != nil {
			result.AddError("team %d: %v", next.ExternalID, err)
			return
		}
		result.Created++
	case err != nil:
		result.AddError("team %d: %v", next.ExternalID, err)
	case teamChanged(cur, next):
		next.ID = cur.ID
		if err := s.store.UpdateTeam(ctx, next); err != nil {
			result.AddError("team %d: %v", next.ExternalID, err)
			return
		}
		result.Updated++
	default:
		result.Unchanged++
	}
}
