package odds

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"sportsync/internal/models"
)

// MarketKind decides how a market's values are paired into cells.
type MarketKind int

const (
	ThreeWay MarketKind = iota // H / D / A
	YesNo                      // Yes / No
	Line                       // two sides sharing a handicap line
)

type MarketDef struct {
	ID       int
	Code     string
	Kind     MarketKind
	HalfTime bool
}

// PreMatchMarkets are the bookmaker bet ids served by /odds.
var PreMatchMarkets = []MarketDef{
	{ID: 1, Code: models.BetMatchWinner, Kind: ThreeWay},
	{ID: 4, Code: models.BetAsianHandicap, Kind: Line},
	{ID: 5, Code: models.BetOverUnder, Kind: Line},
	{ID: 8, Code: models.BetBTTS, Kind: YesNo},
	{ID: 16, Code: models.BetHomeTotal, Kind: Line},
	{ID: 17, Code: models.BetAwayTotal, Kind: Line},
	{ID: 13, Code: models.BetHTMatchWinner, Kind: ThreeWay, HalfTime: true},
	{ID: 19, Code: models.BetHTAsianHandicap, Kind: Line, HalfTime: true},
	{ID: 6, Code: models.BetHTOverUnder, Kind: Line, HalfTime: true},
	{ID: 34, Code: models.BetHTBTTS, Kind: YesNo, HalfTime: true},
}

// LiveMarkets are the in-play bet ids served by /odds/live.
var LiveMarkets = []MarketDef{
	{ID: 59, Code: models.BetMatchWinner, Kind: ThreeWay},
	{ID: 33, Code: models.BetAsianHandicap, Kind: Line},
	{ID: 36, Code: models.BetOverUnder, Kind: Line},
	{ID: 69, Code: models.BetBTTS, Kind: YesNo},
	{ID: 50, Code: models.BetHomeTotal, Kind: Line},
	{ID: 51, Code: models.BetAwayTotal, Kind: Line},
	{ID: 12, Code: models.BetHTMatchWinner, Kind: ThreeWay, HalfTime: true},
	{ID: 39, Code: models.BetHTAsianHandicap, Kind: Line, HalfTime: true},
	{ID: 25, Code: models.BetHTOverUnder, Kind: Line, HalfTime: true},
	{ID: 72, Code: models.BetHTBTTS, Kind: YesNo, HalfTime: true},
}

var (
	preMatchByID = indexMarkets(PreMatchMarkets)
	liveByID     = indexMarkets(LiveMarkets)
)

func indexMarkets(defs []MarketDef) map[int]MarketDef {
	out := make(map[int]MarketDef, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

// Lookup resolves a provider market id to its local definition.
func Lookup(marketID int, live bool) (MarketDef, bool) {
	if live {
		d, ok := liveByID[marketID]
		return d, ok
	}
	d, ok := preMatchByID[marketID]
	return d, ok
}

// FlexString accepts JSON strings, numbers and null.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// Value is one raw bookmaker selection.
type Value struct {
	Value     FlexString `json:"value"`
	Odd       FlexString `json:"odd"`
	Handicap  FlexString `json:"handicap"`
	Main      *bool      `json:"main"`
	Suspended bool       `json:"suspended"`
}

// Market is one raw bookmaker bet with its values.
type Market struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Selection tokens.
const (
	SelHome  = "H"
	SelDraw  = "D"
	SelAway  = "A"
	SelOver  = "O"
	SelUnder = "U"
	SelYes   = "Yes"
	SelNo    = "No"
)

// ParseSelection normalizes a raw value into a selection token and a handicap
// line ("" when the market has none). ok is false for unrecognized values.
func ParseSelection(kind MarketKind, v Value) (selection, handicap string, ok bool) {
	text := strings.TrimSpace(string(v.Value))
	word, rest := text, ""
	if i := strings.IndexByte(text, ' '); i > 0 {
		word, rest = text[:i], strings.TrimSpace(text[i+1:])
	}

	switch kind {
	case ThreeWay:
		switch strings.ToLower(text) {
		case "home", "1":
			return SelHome, "", true
		case "draw", "x":
			return SelDraw, "", true
		case "away", "2":
			return SelAway, "", true
		}
	case YesNo:
		switch strings.ToLower(text) {
		case "yes":
			return SelYes, "", true
		case "no":
			return SelNo, "", true
		}
	case Line:
		switch strings.ToLower(word) {
		case "home":
			selection = SelHome
		case "away":
			selection = SelAway
		case "over":
			selection = SelOver
		case "under":
			selection = SelUnder
		default:
			return "", "", false
		}
		line := strings.TrimSpace(string(v.Handicap))
		if line == "" {
			line = rest
		}
		handicap, ok = normalizeLine(line)
		return selection, handicap, ok
	}
	return "", "", false
}

// normalizeLine renders "+0.50", "0.5" and ".5" identically.
func normalizeLine(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(strings.TrimPrefix(line, "+"), 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// Price parses a decimal odd; non-positive or malformed prices are rejected.
func Price(v Value) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v.Odd)), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}
