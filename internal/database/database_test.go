package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sportsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "sportsync.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_MigratesAndSeeds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sportID, err := db.SportID(ctx, models.SportFootball)
	require.NoError(t, err)
	assert.Positive(t, sportID)

	betTypes, err := db.BetTypeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, betTypes, len(models.DefaultBetTypes))
	assert.Contains(t, betTypes, models.BetMatchWinner)

	_, err = db.SportID(ctx, "curling")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewDB_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	logger := zerolog.Nop()

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	betTypes, err := db.BetTypeIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, betTypes, len(models.DefaultBetTypes))
}

func TestRebind(t *testing.T) {
	sqlite := newWithConn(nil, models.DriverSQLite, nil)
	pg := newWithConn(nil, models.DriverPostgres, nil)

	q := `SELECT * FROM t WHERE a = ? AND b IN (?, ?)`
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)`, pg.rebind(q))
}

func TestLeagueTeamLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sportID, err := db.SportID(ctx, models.SportFootball)
	require.NoError(t, err)

	league := &models.League{ExternalID: 39, SportID: sportID, Name: "Premier League", Country: "England", Season: 2024, IsActive: true}
	require.NoError(t, db.CreateLeague(ctx, league))
	assert.Positive(t, league.ID)

	dup := &models.League{ExternalID: 39, SportID: sportID, Name: "Duplicate"}
	err = db.CreateLeague(ctx, dup)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	league.Name = "EPL"
	league.IsActive = false
	require.NoError(t, db.UpdateLeague(ctx, league))

	found, err := db.FindLeagueByExternalID(ctx, 39)
	require.NoError(t, err)
	assert.Equal(t, "EPL", found.Name)
	assert.True(t, found.IsActive, "update must not change is_active")

	require.NoError(t, db.SetLeagueActive(ctx, 39, false))
	active, err := db.ListLeagues(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.ErrorIs(t, db.SetLeagueActive(ctx, 999, true), ErrNotFound)

	team := &models.Team{ExternalID: 33, SportID: sportID, Name: "Manchester United", Code: "MUN"}
	require.NoError(t, db.CreateTeam(ctx, team))
	foundTeam, err := db.FindTeamByExternalID(ctx, 33, sportID)
	require.NoError(t, err)
	assert.Equal(t, "MUN", foundTeam.Code)

	_, err = db.FindTeamByExternalID(ctx, 33, sportID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func seedMatch(t *testing.T, db *DB, externalID int64, start time.Time, status string) *models.Match {
	t.Helper()
	ctx := context.Background()
	sportID, err := db.SportID(ctx, models.SportFootball)
	require.NoError(t, err)

	league, err := db.FindLeagueByExternalID(ctx, 1)
	if err != nil {
		league = &models.League{ExternalID: 1, SportID: sportID, Name: "League", IsActive: true}
		require.NoError(t, db.CreateLeague(ctx, league))
	}
	home, err := db.FindTeamByExternalID(ctx, 10, sportID)
	if err != nil {
		home = &models.Team{ExternalID: 10, SportID: sportID, Name: "Home"}
		require.NoError(t, db.CreateTeam(ctx, home))
	}
	away, err := db.FindTeamByExternalID(ctx, 20, sportID)
	if err != nil {
		away = &models.Team{ExternalID: 20, SportID: sportID, Name: "Away"}
		require.NoError(t, db.CreateTeam(ctx, away))
	}

	m := &models.Match{
		ExternalID:     externalID,
		LeagueID:       league.ID,
		HomeTeamID:     home.ID,
		AwayTeamID:     away.ID,
		StartTime:      start,
		Status:         status,
		IsLive:         status == models.MatchStatusLive,
		BettingEnabled: true,
	}
	require.NoError(t, db.CreateMatch(ctx, m))
	return m
}

func TestMatchSelectionsForOdds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := seedMatch(t, db, 100, now.Add(2*time.Hour), models.MatchStatusScheduled)
	seedMatch(t, db, 101, now.Add(72*time.Hour), models.MatchStatusScheduled)
	live := seedMatch(t, db, 102, now.Add(-30*time.Minute), models.MatchStatusLive)
	disabled := seedMatch(t, db, 103, now.Add(3*time.Hour), models.MatchStatusScheduled)
	require.NoError(t, db.SetMatchBetting(ctx, disabled.ID, false))

	upcoming, err := db.UpcomingMatchesForOdds(ctx, now, now.Add(48*time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, soon.ID, upcoming[0].ID)

	liveMatches, err := db.LiveMatchesForOdds(ctx, 30)
	require.NoError(t, err)
	require.Len(t, liveMatches, 1)
	assert.Equal(t, live.ID, liveMatches[0].ID)

	score := 2
	soon.HomeScore = &score
	soon.Status = models.MatchStatusFinished
	require.NoError(t, db.UpdateMatch(ctx, soon))
	reloaded, err := db.GetMatch(ctx, soon.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.HomeScore)
	assert.Equal(t, 2, *reloaded.HomeScore)
	assert.Nil(t, reloaded.AwayScore)
	assert.True(t, reloaded.BettingEnabled)
}

func TestOddsNaturalKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	m := seedMatch(t, db, 200, time.Now().Add(time.Hour), models.MatchStatusScheduled)
	betTypes, err := db.BetTypeIDs(ctx)
	require.NoError(t, err)

	over := &models.Odds{MatchID: m.ID, BetTypeID: betTypes[models.BetOverUnder], Selection: "Over", Handicap: "2.5", Price: 1.9}
	require.NoError(t, db.CreateOdds(ctx, over))
	under := &models.Odds{MatchID: m.ID, BetTypeID: betTypes[models.BetOverUnder], Selection: "Over", Handicap: "3.5", Price: 2.6}
	require.NoError(t, db.CreateOdds(ctx, under))

	dup := &models.Odds{MatchID: m.ID, BetTypeID: betTypes[models.BetOverUnder], Selection: "Over", Handicap: "2.5", Price: 1.8}
	assert.True(t, IsUniqueViolation(db.CreateOdds(ctx, dup)))

	found, err := db.FindOdds(ctx, m.ID, betTypes[models.BetOverUnder], "Over", "2.5")
	require.NoError(t, err)
	found.Price = 1.85
	found.Suspended = true
	require.NoError(t, db.UpdateOdds(ctx, found))

	all, err := db.ListOddsByMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1.85, all[0].Price)
	assert.True(t, all[0].Suspended)

	counts, err := db.EntityCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["odds"])
	assert.Equal(t, 1, counts["matches"])
}
