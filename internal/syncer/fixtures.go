package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"sportsync/internal/models"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

const entityFixtures = "fixtures"

type fixtureOutcome int

const (
	outcomeCreated fixtureOutcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
	outcomeFailed
)

// SyncFixtures walks the date window day by day in ascending order. Only
// fixtures of locally active leagues count toward TotalFetched and are
// stored; the rest are tallied as Filtered. A fixture whose teams are not
// known locally is skipped.
func (s *Service) SyncFixtures(ctx context.Context, p models.FixtureParams, progress ProgressFunc) (*models.SyncResult, error) {
	started := time.Now()
	result := models.NewSyncResult(entityFixtures)

	from, to, err := s.fixtureWindow(p)
	if err != nil {
		return nil, err
	}

	sportID, err := s.store.SportID(ctx, s.cfg.Sport)
	if err != nil {
		return nil, fmt.Errorf("resolve sport %s: %w", s.cfg.Sport, err)
	}

	leagues, err := s.store.ListLeagues(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active leagues: %w", err)
	}
	byExternal := make(map[int64]models.League, len(leagues))
	active := mapset.NewSet[int64]()
	for _, l := range leagues {
		if p.LeagueExternalID != 0 && l.ExternalID != p.LeagueExternalID {
			continue
		}
		byExternal[l.ExternalID] = l
		active.Add(l.ExternalID)
	}
	if p.LeagueExternalID != 0 && active.Cardinality() == 0 {
		return nil, fmt.Errorf("league %d is not active locally", p.LeagueExternalID)
	}

	days := int(to.Sub(from).Hours()/24) + 1
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := from.AddDate(0, 0, i)
		s.syncFixtureDay(ctx, day, p.LeagueExternalID, sportID, active, byExternal, result)
		progress.report(i+1, days)
	}
	return s.finish(result, started), nil
}

// fixtureWindow resolves the requested range and clamps it to the
// configured past/future limits around today.
func (s *Service) fixtureWindow(p models.FixtureParams) (time.Time, time.Time, error) {
	now := s.now().UTC()
	from, to, err := p.Range(now, s.cfg.FixturePastDays, s.cfg.FixtureFutureDays)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	minFrom := today.AddDate(0, 0, -s.cfg.FixturePastDays)
	maxTo := today.AddDate(0, 0, s.cfg.FixtureFutureDays)
	if from.Before(minFrom) {
		from = minFrom
	}
	if to.After(maxTo) {
		to = maxTo
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("range %s..%s is outside the allowed window %s..%s",
			p.From, p.To, minFrom.Format(models.DateLayout), maxTo.Format(models.DateLayout))
	}
	return from, to, nil
}

func (s *Service) syncFixtureDay(ctx context.Context, day time.Time, leagueID, sportID int64,
	active mapset.Set[int64], leagues map[int64]models.League, result *models.SyncResult) {
	date := day.Format(models.DateLayout)
	params := map[string]string{"date": date}
	if leagueID != 0 {
		params["league"] = strconv.FormatInt(leagueID, 10)
		params["season"] = strconv.Itoa(leagues[leagueID].Season)
	}

	env, err := s.fetcher.Request(ctx, "/fixtures", params)
	if err != nil {
		result.AddError("fixtures on %s: %v", date, err)
		return
	}
	var items []apiFixtureItem
	if err := env.Decode(&items); err != nil {
		result.AddError("fixtures on %s: %v", date, err)
		return
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.FixtureConcurrency)
	filtered := 0
	for _, it := range items {
		if !active.Contains(it.League.ID) {
			filtered++
			continue
		}
		mu.Lock()
		result.TotalFetched++
		mu.Unlock()
		g.Go(func() error {
			outcome, err := s.upsertFixture(ctx, it, leagues[it.League.ID], sportID)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCreated:
				result.Created++
			case outcomeUpdated:
				result.Updated++
			case outcomeUnchanged:
				result.Unchanged++
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.AddError("fixture %d: %v", it.Fixture.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Filtered += filtered
	if filtered > 0 {
		s.logger.Debug().Str("date", date).Int("filtered", filtered).Msg("fixtures of inactive leagues filtered")
	}
}

func (s *Service) upsertFixture(ctx context.Context, it apiFixtureItem, league models.League, sportID int64) (fixtureOutcome, error) {
	if it.Fixture.ID == 0 {
		return outcomeSkipped, nil
	}
	home, err := s.store.FindTeamByExternalID(ctx, it.Teams.Home.ID, sportID)
	if isNotFound(err) {
		s.logger.Debug().Int64("fixture", it.Fixture.ID).Int64("team", it.Teams.Home.ID).Msg("home team unknown, skipping")
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeFailed, err
	}
	away, err := s.store.FindTeamByExternalID(ctx, it.Teams.Away.ID, sportID)
	if isNotFound(err) {
		s.logger.Debug().Int64("fixture", it.Fixture.ID).Int64("team", it.Teams.Away.ID).Msg("away team unknown, skipping")
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeFailed, err
	}

	next := it.toMatch(league.ID, home.ID, away.ID)
	cur, err := s.store.FindMatchByExternalID(ctx, next.ExternalID)
	switch {
	case isNotFound(err):
		next.BettingEnabled = true
		if err := s.store.CreateMatch(ctx, &next); err != nil {
			return outcomeFailed, err
		}
		return outcomeCreated, nil
	case err != nil:
		return outcomeFailed, err
	case matchChanged(cur, &next):
		next.ID = cur.ID
		if err := s.store.UpdateMatch(ctx, &next); err != nil {
			return outcomeFailed, err
		}
		return outcomeUpdated, nil
	default:
		return outcomeUnchanged, nil
	}
}
