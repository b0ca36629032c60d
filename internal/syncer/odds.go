package syncer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sportsync/internal/models"
	"sportsync/internal/odds"
)

const entityOdds = "odds"

const (
	upcomingBoardTTL = 30 * time.Minute
	liveBoardTTL     = time.Minute
)

// SyncUpcomingOdds refreshes pre-match odds for scheduled, bettable matches
// starting within the lookahead window.
func (s *Service) SyncUpcomingOdds(ctx context.Context, p models.OddsUpcomingParams, progress ProgressFunc) (*models.SyncResult, error) {
	hours := p.Hours
	if hours <= 0 {
		hours = s.cfg.OddsUpcomingHours
	}
	if hours <= 0 {
		hours = models.DefaultOddsUpcomingHours
	}
	now := s.now().UTC()
	matches, err := s.store.UpcomingMatchesForOdds(ctx, now, now.Add(time.Duration(hours)*time.Hour),
		batchSize(s.cfg.OddsUpcomingBatch, models.MaxUpcomingOddsBatch))
	if err != nil {
		return nil, fmt.Errorf("list upcoming matches: %w", err)
	}
	return s.syncOdds(ctx, matches, false, progress)
}

// SyncLiveOdds refreshes in-play odds for live, bettable matches.
func (s *Service) SyncLiveOdds(ctx context.Context, progress ProgressFunc) (*models.SyncResult, error) {
	matches, err := s.store.LiveMatchesForOdds(ctx, batchSize(s.cfg.OddsLiveBatch, models.MaxLiveOddsBatch))
	if err != nil {
		return nil, fmt.Errorf("list live matches: %w", err)
	}
	return s.syncOdds(ctx, matches, true, progress)
}

func batchSize(configured, max int) int {
	if configured <= 0 || configured > max {
		return max
	}
	return configured
}

func (s *Service) syncOdds(ctx context.Context, matches []models.Match, live bool, progress ProgressFunc) (*models.SyncResult, error) {
	started := time.Now()
	result := models.NewSyncResult(entityOdds)

	betTypes, err := s.store.BetTypeIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bet types: %w", err)
	}

	for i := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.syncMatchOdds(ctx, &matches[i], live, betTypes, result); err != nil {
			result.AddError("odds of match %d: %v", matches[i].ID, err)
		}
		progress.report(i+1, len(matches))
	}
	return s.finish(result, started), nil
}

func (s *Service) syncMatchOdds(ctx context.Context, m *models.Match, live bool, betTypes map[string]int64, result *models.SyncResult) error {
	params := map[string]string{"fixture": strconv.FormatInt(m.ExternalID, 10)}
	endpoint := "/odds"
	if live {
		endpoint = "/odds/live"
	} else if s.cfg.Bookmaker > 0 {
		params["bookmaker"] = strconv.Itoa(s.cfg.Bookmaker)
	}

	env, err := s.fetcher.Request(ctx, endpoint, params)
	if err != nil {
		return err
	}

	var (
		markets   []odds.Market
		suspended bool
	)
	if live {
		var items []apiLiveOdds
		if err := env.Decode(&items); err != nil {
			return err
		}
		for _, it := range items {
			if it.Fixture.ID == m.ExternalID {
				markets = it.Odds
				suspended = it.suspended()
				break
			}
		}
	} else {
		var items []apiPreMatchOdds
		if err := env.Decode(&items); err != nil {
			return err
		}
		for _, it := range items {
			if it.Fixture.ID == m.ExternalID {
				markets = it.markets(s.cfg.Bookmaker)
				break
			}
		}
	}
	if len(markets) == 0 {
		return nil
	}

	for _, market := range markets {
		def, ok := odds.Lookup(market.ID, live)
		if !ok {
			continue
		}
		betTypeID, ok := betTypes[def.Code]
		if !ok {
			continue
		}
		seen := make(map[[2]string]bool)
		for _, v := range market.Values {
			selection, handicap, ok := odds.ParseSelection(def.Kind, v)
			if !ok {
				continue
			}
			price, ok := odds.Price(v)
			if !ok {
				continue
			}
			key := [2]string{selection, handicap}
			if seen[key] {
				continue
			}
			seen[key] = true
			result.TotalFetched++

			s.upsertOdds(ctx, &models.Odds{
				MatchID:   m.ID,
				BetTypeID: betTypeID,
				Selection: selection,
				Handicap:  handicap,
				Price:     price,
				Suspended: suspended || v.Suspended,
				IsLive:    live,
			}, result)
		}
	}

	s.saveBoard(ctx, m, markets, live, suspended)
	return nil
}

func (s *Service) upsertOdds(ctx context.Context, next *models.Odds, result *models.SyncResult) {
	cur, err := s.store.FindOdds(ctx, next.MatchID, next.BetTypeID, next.Selection, next.Handicap)
	switch {
	case isNotFound(err):
		if err := s.store.CreateOdds(ctx, next); err != nil {
			result.AddError("odds %d/%d/%s/%s: %v", next.MatchID, next.BetTypeID, next.Selection, next.Handicap, err)
			return
		}
		result.Created++
	case err != nil:
		result.AddError("odds %d/%d/%s/%s: %v", next.MatchID, next.BetTypeID, next.Selection, next.Handicap, err)
	case cur.Price != next.Price || cur.Suspended != next.Suspended || cur.IsLive != next.IsLive:
		next.ID = cur.ID
		if err := s.store.UpdateOdds(ctx, next); err != nil {
			result.AddError("odds %d: %v", cur.ID, err)
			return
		}
		result.Updated++
	default:
		result.Unchanged++
	}
}

func boardKey(matchID int64) string {
	return models.CachePrefixOddsBoard + strconv.FormatInt(matchID, 10)
}

func (s *Service) saveBoard(ctx context.Context, m *models.Match, markets []odds.Market, live, suspended bool) {
	if s.cache == nil {
		return
	}
	statusCode := m.StatusCode
	if live && !models.IsLiveStatus(statusCode) {
		statusCode = "LIVE"
	}
	row := odds.ToRow(odds.Fixture{ID: m.ExternalID, StatusCode: statusCode, Suspended: suspended}, markets)
	ttl := upcomingBoardTTL
	if live {
		ttl = liveBoardTTL
	}
	if err := s.cache.SetJSON(ctx, boardKey(m.ID), row, ttl); err != nil {
		s.logger.Warn().Err(err).Int64("match", m.ID).Msg("failed to cache odds board")
	}
}

// Board returns the last cached odds board of a local match.
func (s *Service) Board(ctx context.Context, matchID int64) (*odds.Row, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var row odds.Row
	found, err := s.cache.GetJSON(ctx, boardKey(matchID), &row)
	if err != nil || !found {
		return nil, false, err
	}
	return &row, true, nil
}
