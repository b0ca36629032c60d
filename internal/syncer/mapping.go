package syncer

import (
	"time"

	"sportsync/internal/models"
	"sportsync/internal/odds"
)

type apiLeagueItem struct {
	League struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
		Logo string `json:"logo"`
	} `json:"league"`
	Country struct {
		Name string `json:"name"`
	} `json:"country"`
}

func (it apiLeagueItem) toLeague(sportID int64, season int) models.League {
	return models.League{
		ExternalID: it.League.ID,
		SportID:    sportID,
		Name:       it.League.Name,
		Type:       it.League.Type,
		Country:    it.Country.Name,
		Logo:       it.League.Logo,
		Season:     season,
	}
}

func leagueChanged(cur, next *models.League) bool {
	return cur.Name != next.Name || cur.Type != next.Type || cur.Country != next.Country ||
		cur.Logo != next.Logo || cur.Season != next.Season
}

type apiTeamItem struct {
	Team struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Code    string `json:"code"`
		Country string `json:"country"`
		Founded *int   `json:"founded"`
		Logo    string `json:"logo"`
	} `json:"team"`
}

func (it apiTeamItem) toTeam(sportID int64) models.Team {
	t := models.Team{
		ExternalID: it.Team.ID,
		SportID:    sportID,
		Name:       it.Team.Name,
		Code:       it.Team.Code,
		Country:    it.Team.Country,
		Logo:       it.Team.Logo,
	}
	if it.Team.Founded != nil {
		t.Founded = *it.Team.Founded
	}
	return t
}

func teamChanged(cur, next *models.Team) bool {
	return cur.Name != next.Name || cur.Code != next.Code || cur.Country != next.Country ||
		cur.Logo != next.Logo || cur.Founded != next.Founded
}

type apiTeamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type apiFixtureItem struct {
	Fixture struct {
		ID     int64     `json:"id"`
		Date   time.Time `json:"date"`
		Venue  struct {
			Name string `json:"name"`
		} `json:"venue"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID     int64  `json:"id"`
		Season int    `json:"season"`
		Round  string `json:"round"`
	} `json:"league"`
	Teams struct {
		Home apiTeamRef `json:"home"`
		Away apiTeamRef `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

func (it apiFixtureItem) toMatch(leagueID, homeID, awayID int64) models.Match {
	code := it.Fixture.Status.Short
	m := models.Match{
		ExternalID: it.Fixture.ID,
		LeagueID:   leagueID,
		HomeTeamID: homeID,
		AwayTeamID: awayID,
		StartTime:  it.Fixture.Date.UTC(),
		Status:     models.MatchStatusFromCode(code),
		StatusCode: code,
		IsLive:     models.IsLiveStatus(code),
		HomeScore:  it.Goals.Home,
		AwayScore:  it.Goals.Away,
		Round:      it.League.Round,
		Season:     it.League.Season,
		Venue:      it.Fixture.Venue.Name,
	}
	if it.Fixture.Status.Elapsed != nil {
		m.Elapsed = *it.Fixture.Status.Elapsed
	}
	return m
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func matchChanged(cur, next *models.Match) bool {
	return cur.LeagueID != next.LeagueID || cur.HomeTeamID != next.HomeTeamID ||
		cur.AwayTeamID != next.AwayTeamID || !cur.StartTime.Equal(next.StartTime) ||
		cur.Status != next.Status || cur.StatusCode != next.StatusCode || cur.Elapsed != next.Elapsed ||
		cur.IsLive != next.IsLive || !intPtrEqual(cur.HomeScore, next.HomeScore) ||
		!intPtrEqual(cur.AwayScore, next.AwayScore) || cur.Round != next.Round ||
		cur.Season != next.Season || cur.Venue != next.Venue
}

// apiPreMatchOdds is one /odds item.
type apiPreMatchOdds struct {
	Fixture struct {
		ID int64 `json:"id"`
	} `json:"fixture"`
	Bookmakers []struct {
		ID   int           `json:"id"`
		Name string        `json:"name"`
		Bets []odds.Market `json:"bets"`
	} `json:"bookmakers"`
}

// markets picks the configured bookmaker, or the first one listed.
func (it apiPreMatchOdds) markets(bookmaker int) []odds.Market {
	if len(it.Bookmakers) == 0 {
		return nil
	}
	for _, b := range it.Bookmakers {
		if bookmaker > 0 && b.ID == bookmaker {
			return b.Bets
		}
	}
	if bookmaker > 0 {
		return nil
	}
	return it.Bookmakers[0].Bets
}

// apiLiveOdds is one /odds/live item.
type apiLiveOdds struct {
	Fixture struct {
		ID     int64 `json:"id"`
		Status struct {
			Long    string `json:"long"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	Status struct {
		Stopped  bool `json:"stopped"`
		Blocked  bool `json:"blocked"`
		Finished bool `json:"finished"`
	} `json:"status"`
	Odds []odds.Market `json:"odds"`
}

func (it apiLiveOdds) suspended() bool {
	return it.Status.Stopped || it.Status.Blocked || it.Status.Finished
}
