// Package odds turns raw bookmaker markets into the normalized odds board.
package odds

import (
	"sportsync/internal/models"
)

// Fixture carries the fixture facts the transformer needs.
type Fixture struct {
	ID         int64  `json:"id"`
	StatusCode string `json:"status_code"`
	// Suspended marks every cell suspended, e.g. when live betting is blocked.
	Suspended bool `json:"suspended"`
}

type Cell struct {
	Selection string  `json:"selection"`
	Label     string  `json:"label"`
	Price     float64 `json:"price"`
	Handicap  string  `json:"handicap,omitempty"`
	Suspended bool    `json:"suspended"`
}

// Row is the normalized odds board of one fixture, keyed by bet type code.
type Row struct {
	FixtureID   int64             `json:"fixture_id"`
	IsLive      bool              `json:"is_live"`
	Markets     map[string][]Cell `json:"markets"`
	MarketCount int               `json:"market_count"`
}

// ToRow builds the board for fixture from its raw markets. Absent or
// incomplete markets are left out; half-time markets only appear in play.
func ToRow(f Fixture, markets []Market) Row {
	live := models.IsLiveStatus(f.StatusCode)
	row := Row{
		FixtureID:   f.ID,
		IsLive:      live,
		Markets:     make(map[string][]Cell),
		MarketCount: len(markets),
	}

	defs := PreMatchMarkets
	if live {
		defs = LiveMarkets
	}
	byID := make(map[int]Market, len(markets))
	for _, m := range markets {
		if _, dup := byID[m.ID]; !dup {
			byID[m.ID] = m
		}
	}

	for _, def := range defs {
		if def.HalfTime && !live {
			continue
		}
		m, ok := byID[def.ID]
		if !ok {
			continue
		}
		var cells []Cell
		switch def.Kind {
		case ThreeWay:
			cells = pickFixed(m, def.Kind, SelHome, SelDraw, SelAway)
		case YesNo:
			cells = pickFixed(m, def.Kind, SelYes, SelNo)
		case Line:
			cells = pickLine(m, lineSides(def.Code))
		}
		if cells == nil {
			continue
		}
		if f.Suspended {
			for i := range cells {
				cells[i].Suspended = true
			}
		}
		row.Markets[def.Code] = cells
	}
	return row
}

func lineSides(code string) [2]string {
	switch code {
	case models.BetAsianHandicap, models.BetHTAsianHandicap:
		return [2]string{SelHome, SelAway}
	default:
		return [2]string{SelOver, SelUnder}
	}
}

func newCell(v Value, selection, handicap string) (Cell, bool) {
	price, ok := Price(v)
	if !ok {
		return Cell{}, false
	}
	label := selection
	if handicap != "" {
		label = selection + " " + handicap
	}
	return Cell{
		Selection: selection,
		Label:     label,
		Price:     price,
		Handicap:  handicap,
		Suspended: v.Suspended,
	}, true
}

// pickFixed returns one cell per wanted selection in order, or nil if any is missing.
func pickFixed(m Market, kind MarketKind, wanted ...string) []Cell {
	found := make(map[string]Cell, len(wanted))
	for _, v := range m.Values {
		sel, _, ok := ParseSelection(kind, v)
		if !ok {
			continue
		}
		if _, seen := found[sel]; seen {
			continue
		}
		if c, ok := newCell(v, sel, ""); ok {
			found[sel] = c
		}
	}
	cells := make([]Cell, 0, len(wanted))
	for _, sel := range wanted {
		c, ok := found[sel]
		if !ok {
			return nil
		}
		cells = append(cells, c)
	}
	return cells
}

// pickLine prefers values flagged main, falling back to the first two raw
// values. Both sides must be present.
func pickLine(m Market, sides [2]string) []Cell {
	var candidates []Value
	for _, v := range m.Values {
		if v.Main != nil && *v.Main {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		candidates = m.Values
		if len(candidates) > 2 {
			candidates = candidates[:2]
		}
	}

	var pair [2]*Cell
	for _, v := range candidates {
		sel, handicap, ok := ParseSelection(Line, v)
		if !ok {
			continue
		}
		for i, side := range sides {
			if sel != side || pair[i] != nil {
				continue
			}
			if c, ok := newCell(v, sel, handicap); ok {
				pair[i] = &c
			}
		}
	}
	if pair[0] == nil || pair[1] == nil {
		return nil
	}
	return []Cell{*pair[0], *pair[1]}
}
