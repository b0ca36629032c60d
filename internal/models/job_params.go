package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownJobType = errors.New("unknown job type")

// JobParams is the typed payload of a SyncJob; one variant per job type.
type JobParams interface {
	JobType() JobType
}

type LeagueParams struct {
	Country string `json:"country,omitempty"`
	Season  int    `json:"season,omitempty"`
}

// TeamParams with a zero LeagueExternalID syncs teams of every active league.
type TeamParams struct {
	LeagueExternalID int64 `json:"league_external_id,omitempty"`
	Season           int   `json:"season,omitempty"`
}

// FixtureParams dates are YYYY-MM-DD; empty values fall back to the configured window.
type FixtureParams struct {
	From             string `json:"from,omitempty"`
	To               string `json:"to,omitempty"`
	LeagueExternalID int64  `json:"league_external_id,omitempty"`
}

type OddsUpcomingParams struct {
	Hours int `json:"hours,omitempty"`
}

type OddsLiveParams struct{}

type FullSyncParams struct {
	Season int `json:"season,omitempty"`
	Hours  int `json:"hours,omitempty"`
}

func (LeagueParams) JobType() JobType       { return JobTypeLeague }
func (TeamParams) JobType() JobType         { return JobTypeTeam }
func (FixtureParams) JobType() JobType      { return JobTypeFixture }
func (OddsUpcomingParams) JobType() JobType { return JobTypeOddsUpcoming }
func (OddsLiveParams) JobType() JobType     { return JobTypeOddsLive }
func (FullSyncParams) JobType() JobType     { return JobTypeFullSync }

const DateLayout = "2006-01-02"

// Range resolves the fixture window, using past/future day limits for blanks.
func (p FixtureParams) Range(now time.Time, pastDays, futureDays int) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, -pastDays)
	to := today.AddDate(0, 0, futureDays)

	if p.From != "" {
		parsed, err := time.Parse(DateLayout, p.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
		}
		from = parsed
	}
	if p.To != "" {
		parsed, err := time.Parse(DateLayout, p.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range: %s is before %s", to.Format(DateLayout), from.Format(DateLayout))
	}
	return from, to, nil
}

func EncodeParams(p JobParams) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(p)
}

// DecodeParams decodes a stored payload into the variant matching t.
func DecodeParams(t JobType, raw []byte) (JobParams, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var (
		p   JobParams
		err error
	)
	switch t {
	case JobTypeLeague:
		var v LeagueParams
		err = json.Unmarshal(raw, &v)
		p = v
	case JobTypeTeam:
		var v TeamParams
		err = json.Unmarshal(raw, &v)
		p = v
	case JobTypeFixture:
		var v FixtureParams
		err = json.Unmarshal(raw, &v)
		p = v
	case JobTypeOddsUpcoming:
		var v OddsUpcomingParams
		err = json.Unmarshal(raw, &v)
		p = v
	case JobTypeOddsLive:
		p = OddsLiveParams{}
	case JobTypeFullSync:
		var v FullSyncParams
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", t, err)
	}
	return p, nil
}

// DefaultParams returns the zero-value params for a type.
func DefaultParams(t JobType) (JobParams, error) {
	return DecodeParams(t, nil)
}
