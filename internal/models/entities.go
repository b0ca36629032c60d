package models

import "time"

// Sport is a top-level discipline; teams are scoped by it.
type Sport struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type League struct {
	ID         int64     `json:"id"`
	ExternalID int64     `json:"external_id"`
	SportID    int64     `json:"sport_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Country    string    `json:"country"`
	Logo       string    `json:"logo"`
	Season     int       `json:"season"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Team struct {
	ID         int64     `json:"id"`
	ExternalID int64     `json:"external_id"`
	SportID    int64     `json:"sport_id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Country    string    `json:"country"`
	Logo       string    `json:"logo"`
	Founded    int       `json:"founded"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Match struct {
	ID             int64     `json:"id"`
	ExternalID     int64     `json:"external_id"`
	LeagueID       int64     `json:"league_id"`
	HomeTeamID     int64     `json:"home_team_id"`
	AwayTeamID     int64     `json:"away_team_id"`
	StartTime      time.Time `json:"start_time"`
	Status         string    `json:"status"`
	StatusCode     string    `json:"status_code"`
	Elapsed        int       `json:"elapsed"`
	IsLive         bool      `json:"is_live"`
	BettingEnabled bool      `json:"betting_enabled"`
	HomeScore      *int      `json:"home_score,omitempty"`
	AwayScore      *int      `json:"away_score,omitempty"`
	Round          string    `json:"round"`
	Season         int       `json:"season"`
	Venue          string    `json:"venue"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type BetType struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Odds is one priced selection. Handicap is empty for markets without a line.
type Odds struct {
	ID        int64     `json:"id"`
	MatchID   int64     `json:"match_id"`
	BetTypeID int64     `json:"bet_type_id"`
	Selection string    `json:"selection"`
	Handicap  string    `json:"handicap"`
	Price     float64   `json:"price"`
	Suspended bool      `json:"suspended"`
	IsLive    bool      `json:"is_live"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bet type codes seeded into bet_types.
const (
	BetMatchWinner     = "match_winner"
	BetAsianHandicap   = "asian_handicap"
	BetOverUnder       = "over_under"
	BetBTTS            = "btts"
	BetHomeTotal       = "home_total"
	BetAwayTotal       = "away_total"
	BetHTMatchWinner   = "ht_match_winner"
	BetHTAsianHandicap = "ht_asian_handicap"
	BetHTOverUnder     = "ht_over_under"
	BetHTBTTS          = "ht_btts"
)

var DefaultBetTypes = []BetType{
	{Code: BetMatchWinner, Name: "Match Winner"},
	{Code: BetAsianHandicap, Name: "Asian Handicap"},
	{Code: BetOverUnder, Name: "Goals Over/Under"},
	{Code: BetBTTS, Name: "Both Teams To Score"},
	{Code: BetHomeTotal, Name: "Home Team Total"},
	{Code: BetAwayTotal, Name: "Away Team Total"},
	{Code: BetHTMatchWinner, Name: "First Half Winner"},
	{Code: BetHTAsianHandicap, Name: "First Half Asian Handicap"},
	{Code: BetHTOverUnder, Name: "First Half Over/Under"},
	{Code: BetHTBTTS, Name: "First Half Both Teams To Score"},
}

// LiveStatusCodes are provider fixture short statuses treated as in-play.
var LiveStatusCodes = map[string]bool{
	"1H":   true,
	"HT":   true,
	"2H":   true,
	"ET":   true,
	"BT":   true,
	"P":    true,
	"LIVE": true,
	"INT":  true,
}

func IsLiveStatus(code string) bool {
	return LiveStatusCodes[code]
}

// MatchStatusFromCode maps a provider short status to the local match state.
func MatchStatusFromCode(code string) string {
	switch {
	case IsLiveStatus(code):
		return MatchStatusLive
	case code == "FT" || code == "AET" || code == "PEN" || code == "AWD" || code == "WO":
		return MatchStatusFinished
	case code == "PST" || code == "SUSP":
		return MatchStatusPostponed
	case code == "CANC" || code == "ABD":
		return MatchStatusCancelled
	default:
		return MatchStatusScheduled
	}
}
