package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"sportsync/internal/cache"
	"sportsync/internal/config"
	"sportsync/internal/database"
	"sportsync/internal/models"
	"sportsync/internal/provider"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned responses keyed by endpoint and sorted params.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: map[string]string{}, failures: map[string]error{}}
}

func requestKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return endpoint + "?" + strings.Join(parts, "&")
}

func (f *fakeFetcher) on(endpoint string, params map[string]string, response string) {
	f.responses[requestKey(endpoint, params)] = response
}

func (f *fakeFetcher) fail(endpoint string, params map[string]string, err error) {
	f.failures[requestKey(endpoint, params)] = err
}

func (f *fakeFetcher) Request(_ context.Context, endpoint string, params map[string]string) (*provider.Envelope, error) {
	key := requestKey(endpoint, params)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	body, ok := f.responses[key]
	if !ok {
		body = "[]"
	}
	return &provider.Envelope{Get: endpoint, Response: json.RawMessage(body), Results: 1}, nil
}

func (f *fakeFetcher) callsTo(endpoint string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, endpoint+"?") {
			out = append(out, c)
		}
	}
	return out
}

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	db      *database.DB
	fetcher *fakeFetcher
	cache   *cache.MemoryCache
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := newFakeFetcher()
	c := cache.NewMemoryCache()
	svc := NewService(f, db, c, config.SyncConfig{
		Sport:              models.SportFootball,
		Season:             2023,
		ActiveLeagues:      []int64{39, 140},
		FixturePastDays:    7,
		FixtureFutureDays:  14,
		FixtureConcurrency: 4,
		OddsUpcomingHours:  48,
		OddsUpcomingBatch:  50,
		OddsLiveBatch:      30,
	}, &logger)
	svc.now = func() time.Time { return testNow }

	f.on("/leagues", map[string]string{"season": "2023"}, `[
		{"league":{"id":39,"name":"Premier League","type":"League","logo":"pl.png"},"country":{"name":"England"}},
		{"league":{"id":140,"name":"La Liga","type":"League","logo":"ll.png"},"country":{"name":"Spain"}},
		{"league":{"id":78,"name":"Bundesliga","type":"League","logo":"bl.png"},"country":{"name":"Germany"}}
	]`)
	f.on("/teams", map[string]string{"league": "39", "season": "2023"}, `[
		{"team":{"id":33,"name":"Manchester United","code":"MUN","country":"England","founded":1878,"logo":"33.png"}},
		{"team":{"id":34,"name":"Newcastle","code":"NEW","country":"England","founded":1892,"logo":"34.png"}}
	]`)
	f.on("/teams", map[string]string{"league": "140", "season": "2023"}, `[
		{"team":{"id":529,"name":"Barcelona","code":"BAR","country":"Spain","founded":1899,"logo":"529.png"}},
		{"team":{"id":530,"name":"Atletico Madrid","code":null,"country":"Spain","founded":null,"logo":"530.png"}}
	]`)
	f.on("/fixtures", map[string]string{"date": "2024-01-01"}, `[
		{"fixture":{"id":1001,"date":"2024-01-01T15:00:00+00:00","venue":{"name":"Old Trafford"},"status":{"short":"NS","elapsed":null}},
		 "league":{"id":39,"season":2023,"round":"Regular Season - 20"},
		 "teams":{"home":{"id":33},"away":{"id":34}},"goals":{"home":null,"away":null}},
		{"fixture":{"id":1002,"date":"2024-01-01T17:30:00+00:00","status":{"short":"NS"}},
		 "league":{"id":78,"season":2023},"teams":{"home":{"id":1},"away":{"id":2}},"goals":{}},
		{"fixture":{"id":1003,"date":"2024-01-01T20:00:00+00:00","status":{"short":"NS"}},
		 "league":{"id":140,"season":2023},"teams":{"home":{"id":529},"away":{"id":999}},"goals":{}}
	]`)
	f.on("/fixtures", map[string]string{"date": "2024-01-02"}, `[
		{"fixture":{"id":1004,"date":"2024-01-02T20:00:00+00:00","status":{"short":"NS"}},
		 "league":{"id":140,"season":2023,"round":"Regular Season - 19"},
		 "teams":{"home":{"id":529},"away":{"id":530}},"goals":{}}
	]`)

	return &fixture{svc: svc, db: db, fetcher: f, cache: c}
}

func (fx *fixture) seedLeaguesAndTeams(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)
	_, err = fx.svc.SyncTeams(ctx, models.TeamParams{}, nil)
	require.NoError(t, err)
}

func TestSyncLeagues(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	var progress []int
	res, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, func(done, total int) {
		progress = append(progress, done)
		assert.Equal(t, 3, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFetched)
	assert.Equal(t, 3, res.Created)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.False(t, res.CompletedAt.IsZero())

	active, err := fx.db.ListLeagues(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, int64(39), active[0].ExternalID)
	assert.Equal(t, "England", active[0].Country)
	assert.Equal(t, 2023, active[0].Season)

	again, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, 3, again.Unchanged)
}

func TestSyncLeagues_UpdateKeepsActiveFlag(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	_, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)
	require.NoError(t, fx.db.SetLeagueActive(ctx, 78, true))

	fx.fetcher.on("/leagues", map[string]string{"season": "2023"}, `[
		{"league":{"id":78,"name":"1. Bundesliga","type":"League","logo":"bl.png"},"country":{"name":"Germany"}}
	]`)
	res, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	l, err := fx.db.FindLeagueByExternalID(ctx, 78)
	require.NoError(t, err)
	assert.Equal(t, "1. Bundesliga", l.Name)
	assert.True(t, l.IsActive)
}

func TestSyncLeagues_FetchFailureFailsRun(t *testing.T) {
	fx := setup(t)
	fx.fetcher.fail("/leagues", map[string]string{"season": "2023"}, errors.New("boom"))

	_, err := fx.svc.SyncLeagues(context.Background(), models.LeagueParams{}, nil)
	assert.ErrorContains(t, err, "boom")
}

func TestSyncTeams(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	_, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)

	res, err := fx.svc.SyncTeams(ctx, models.TeamParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalFetched)
	assert.Equal(t, 4, res.Created)
	assert.Equal(t, []string{"/teams?league=140&season=2023", "/teams?league=39&season=2023"},
		sortedCopy(fx.fetcher.callsTo("/teams")))

	sportID, err := fx.db.SportID(ctx, models.SportFootball)
	require.NoError(t, err)
	team, err := fx.db.FindTeamByExternalID(ctx, 530, sportID)
	require.NoError(t, err)
	assert.Equal(t, "", team.Code)
	assert.Equal(t, 0, team.Founded)

	again, err := fx.svc.SyncTeams(ctx, models.TeamParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 4, again.Unchanged)
}

func TestSyncTeams_LeagueFailureIsCollected(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	_, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)
	fx.fetcher.fail("/teams", map[string]string{"league": "39", "season": "2023"}, errors.New("timeout"))

	res, err := fx.svc.SyncTeams(ctx, models.TeamParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "league 39")
}

func TestSyncTeams_SingleLeague(t *testing.T) {
	fx := setup(t)
	res, err := fx.svc.SyncTeams(context.Background(), models.TeamParams{LeagueExternalID: 140, Season: 2023}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []string{"/teams?league=140&season=2023"}, fx.fetcher.callsTo("/teams"))
}

func TestSyncFixtures(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)
	ctx := context.Background()

	res, err := fx.svc.SyncFixtures(ctx, models.FixtureParams{From: "2024-01-01", To: "2024-01-02"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFetched, "inactive league fixture is not fetched-counted")
	assert.Equal(t, 1, res.Filtered, "inactive league fixture is tallied")
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped, "unknown away team")
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"/fixtures?date=2024-01-01", "/fixtures?date=2024-01-02"}, fx.fetcher.callsTo("/fixtures"))

	m, err := fx.db.FindMatchByExternalID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusScheduled, m.Status)
	assert.True(t, m.BettingEnabled)
	assert.Equal(t, "Old Trafford", m.Venue)
	assert.True(t, m.StartTime.Equal(time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)))

	_, err = fx.db.FindMatchByExternalID(ctx, 1002)
	assert.ErrorIs(t, err, database.ErrNotFound)

	again, err := fx.svc.SyncFixtures(ctx, models.FixtureParams{From: "2024-01-01", To: "2024-01-02"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Unchanged)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, 1, again.Filtered)
}

func TestSyncFixtures_StatusUpdate(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)
	ctx := context.Background()
	params := models.FixtureParams{From: "2024-01-01", To: "2024-01-01"}

	_, err := fx.svc.SyncFixtures(ctx, params, nil)
	require.NoError(t, err)

	fx.fetcher.on("/fixtures", map[string]string{"date": "2024-01-01"}, `[
		{"fixture":{"id":1001,"date":"2024-01-01T15:00:00+00:00","venue":{"name":"Old Trafford"},"status":{"short":"2H","elapsed":67}},
		 "league":{"id":39,"season":2023,"round":"Regular Season - 20"},
		 "teams":{"home":{"id":33},"away":{"id":34}},"goals":{"home":2,"away":1}}
	]`)
	res, err := fx.svc.SyncFixtures(ctx, params, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	m, err := fx.db.FindMatchByExternalID(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, m.IsLive)
	assert.Equal(t, models.MatchStatusLive, m.Status)
	assert.Equal(t, 67, m.Elapsed)
	require.NotNil(t, m.HomeScore)
	assert.Equal(t, 2, *m.HomeScore)
}

func TestSyncFixtures_WindowIsClamped(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)

	_, err := fx.svc.SyncFixtures(context.Background(), models.FixtureParams{From: "2023-12-01", To: "2023-12-25"}, nil)
	require.NoError(t, err)
	calls := fx.fetcher.callsTo("/fixtures")
	require.Len(t, calls, 1)
	assert.Equal(t, "/fixtures?date=2023-12-25", calls[0])

	_, err = fx.svc.SyncFixtures(context.Background(), models.FixtureParams{From: "2023-11-01", To: "2023-11-02"}, nil)
	assert.Error(t, err)
}

func TestSyncFixtures_InactiveLeagueRejected(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)

	_, err := fx.svc.SyncFixtures(context.Background(), models.FixtureParams{LeagueExternalID: 78}, nil)
	assert.ErrorContains(t, err, "not active")
}

const preMatchOdds = `[
	{"fixture":{"id":1001},"bookmakers":[{"id":8,"name":"Bet365","bets":[
		{"id":1,"name":"Match Winner","values":[{"value":"Home","odd":"2.10"},{"value":"Draw","odd":"3.40"},{"value":"Away","odd":"3.60"}]},
		{"id":5,"name":"Goals Over/Under","values":[{"value":"Over 2.5","odd":"1.95"},{"value":"Under 2.5","odd":"1.85"}]},
		{"id":999,"name":"Exotic","values":[{"value":"Home","odd":"9.0"}]}
	]}]}
]`

func TestSyncUpcomingOdds(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)
	ctx := context.Background()
	_, err := fx.svc.SyncFixtures(ctx, models.FixtureParams{From: "2024-01-01", To: "2024-01-02"}, nil)
	require.NoError(t, err)
	fx.fetcher.on("/odds", map[string]string{"fixture": "1001"}, preMatchOdds)

	res, err := fx.svc.SyncUpcomingOdds(ctx, models.OddsUpcomingParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalFetched)
	assert.Equal(t, 5, res.Created)
	assert.Empty(t, res.Errors)
	assert.Len(t, fx.fetcher.callsTo("/odds"), 2, "both upcoming matches are queried")

	m, err := fx.db.FindMatchByExternalID(ctx, 1001)
	require.NoError(t, err)
	rows, err := fx.db.ListOddsByMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	betTypes, err := fx.db.BetTypeIDs(ctx)
	require.NoError(t, err)
	home, err := fx.db.FindOdds(ctx, m.ID, betTypes[models.BetMatchWinner], "H", "")
	require.NoError(t, err)
	assert.InDelta(t, 2.10, home.Price, 1e-9)
	over, err := fx.db.FindOdds(ctx, m.ID, betTypes[models.BetOverUnder], "O", "2.5")
	require.NoError(t, err)
	assert.InDelta(t, 1.95, over.Price, 1e-9)

	board, found, err := fx.svc.Board(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1001), board.FixtureID)
	assert.Equal(t, 3, board.MarketCount)
	assert.Len(t, board.Markets[models.BetMatchWinner], 3)

	again, err := fx.svc.SyncUpcomingOdds(ctx, models.OddsUpcomingParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 5, again.Unchanged)
}

func TestSyncUpcomingOdds_PriceMoveUpdates(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)
	ctx := context.Background()
	_, err := fx.svc.SyncFixtures(ctx, models.FixtureParams{From: "2024-01-01", To: "2024-01-01"}, nil)
	require.NoError(t, err)
	fx.fetcher.on("/odds", map[string]string{"fixture": "1001"}, preMatchOdds)
	_, err = fx.svc.SyncUpcomingOdds(ctx, models.OddsUpcomingParams{Hours: 6}, nil)
	require.NoError(t, err)

	fx.fetcher.on("/odds", map[string]string{"fixture": "1001"}, strings.Replace(preMatchOdds, `"2.10"`, `"2.25"`, 1))
	res, err := fx.svc.SyncUpcomingOdds(ctx, models.OddsUpcomingParams{Hours: 6}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 4, res.Unchanged)
}

func TestSyncUpcomingOdds_PerMatchFailureIsCollected(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)
	ctx := context.Background()
	_, err := fx.svc.SyncFixtures(ctx, models.FixtureParams{From: "2024-01-01", To: "2024-01-02"}, nil)
	require.NoError(t, err)
	fx.fetcher.on("/odds", map[string]string{"fixture": "1001"}, preMatchOdds)
	fx.fetcher.fail("/odds", map[string]string{"fixture": "1004"}, &provider.SoftError{Kind: provider.KindRateLimit, Message: "limit"})

	res, err := fx.svc.SyncUpcomingOdds(ctx, models.OddsUpcomingParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Created)
	require.Len(t, res.Errors, 1)
}

func TestSyncLiveOdds(t *testing.T) {
	fx := setup(t)
	fx.seedLeaguesAndTeams(t)
	ctx := context.Background()
	fx.fetcher.on("/fixtures", map[string]string{"date": "2024-01-01"}, `[
		{"fixture":{"id":1001,"date":"2024-01-01T11:00:00+00:00","status":{"short":"2H","elapsed":70}},
		 "league":{"id":39,"season":2023},"teams":{"home":{"id":33},"away":{"id":34}},"goals":{"home":0,"away":0}}
	]`)
	_, err := fx.svc.SyncFixtures(ctx, models.FixtureParams{From: "2024-01-01", To: "2024-01-01"}, nil)
	require.NoError(t, err)

	fx.fetcher.on("/odds/live", map[string]string{"fixture": "1001"}, `[
		{"fixture":{"id":1001,"status":{"long":"Second Half","elapsed":70}},
		 "status":{"stopped":false,"blocked":false,"finished":false},
		 "odds":[
			{"id":59,"name":"Fulltime Result","values":[{"value":"Home","odd":"3.1"},{"value":"Draw","odd":"1.9"},{"value":"Away","odd":"4.2"}]},
			{"id":36,"name":"Over/Under Line","values":[
				{"value":"Over","odd":"1.5","handicap":"0.5","main":false},
				{"value":"Under","odd":"2.5","handicap":"0.5","main":false},
				{"value":"Over","odd":"3.2","handicap":"1.5","main":true,"suspended":true},
				{"value":"Under","odd":"1.3","handicap":"1.5","main":true}]},
			{"id":1,"name":"pre-match id","values":[{"value":"Home","odd":"2.0"}]}
		 ]}
	]`)

	res, err := fx.svc.SyncLiveOdds(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Created, "every line of a mapped market is stored")
	assert.Empty(t, res.Errors)

	m, err := fx.db.FindMatchByExternalID(ctx, 1001)
	require.NoError(t, err)
	betTypes, err := fx.db.BetTypeIDs(ctx)
	require.NoError(t, err)
	over, err := fx.db.FindOdds(ctx, m.ID, betTypes[models.BetOverUnder], "O", "1.5")
	require.NoError(t, err)
	assert.True(t, over.Suspended)
	assert.True(t, over.IsLive)

	board, found, err := fx.svc.Board(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, board.IsLive)
	assert.Equal(t, "O 1.5", board.Markets[models.BetOverUnder][0].Label)
}

func TestApplyActiveLeagues(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	fx.svc.cfg.ActiveLeagues = nil
	_, err := fx.svc.SyncLeagues(ctx, models.LeagueParams{}, nil)
	require.NoError(t, err)

	active, err := fx.db.ListLeagues(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	fx.svc.cfg.ActiveLeagues = []int64{78, 12345}
	require.NoError(t, fx.svc.ApplyActiveLeagues(ctx))
	active, err = fx.db.ListLeagues(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(78), active[0].ExternalID)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
