package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sportsync/internal/models"
)

const matchColumns = `id, external_id, league_id, home_team_id, away_team_id, start_time, status, status_code,
        elapsed, is_live, betting_enabled, home_score, away_score, round, season, venue, created_at, updated_at`

func scanMatch(s rowScanner) (*models.Match, error) {
	var (
		m         models.Match
		homeScore sql.NullInt64
		awayScore sql.NullInt64
	)
	err := s.Scan(&m.ID, &m.ExternalID, &m.LeagueID, &m.HomeTeamID, &m.AwayTeamID, &m.StartTime,
		&m.Status, &m.StatusCode, &m.Elapsed, &m.IsLive, &m.BettingEnabled, &homeScore, &awayScore,
		&m.Round, &m.Season, &m.Venue, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if homeScore.Valid {
		v := int(homeScore.Int64)
		m.HomeScore = &v
	}
	if awayScore.Valid {
		v := int(awayScore.Int64)
		m.AwayScore = &v
	}
	return &m, nil
}

func (db *DB) FindMatchByExternalID(ctx context.Context, externalID int64) (*models.Match, error) {
	m, err := scanMatch(db.queryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE external_id = ?`, externalID))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (db *DB) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	m, err := scanMatch(db.queryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (db *DB) CreateMatch(ctx context.Context, m *models.Match) error {
	now := utcNow()
	id, err := db.insertID(ctx, `
        INSERT INTO matches (external_id, league_id, home_team_id, away_team_id, start_time, status, status_code,
            elapsed, is_live, betting_enabled, home_score, away_score, round, season, venue, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`,
		m.ExternalID, m.LeagueID, m.HomeTeamID, m.AwayTeamID, m.StartTime.UTC(), m.Status, m.StatusCode,
		m.Elapsed, m.IsLive, m.BettingEnabled, m.HomeScore, m.AwayScore, m.Round, m.Season, m.Venue, now, now,
	)
	if err != nil {
		return fmt.Errorf("create match %d: %w", m.ExternalID, err)
	}
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// UpdateMatch refreshes schedule, status and score. betting_enabled is
// operator-owned and left untouched.
func (db *DB) UpdateMatch(ctx context.Context, m *models.Match) error {
	now := utcNow()
	_, err := db.exec(ctx, `
        UPDATE matches SET league_id = ?, home_team_id = ?, away_team_id = ?, start_time = ?, status = ?,
            status_code = ?, elapsed = ?, is_live = ?, home_score = ?, away_score = ?, round = ?, season = ?,
            venue = ?, updated_at = ?
        WHERE id = ?`,
		m.LeagueID, m.HomeTeamID, m.AwayTeamID, m.StartTime.UTC(), m.Status, m.StatusCode, m.Elapsed,
		m.IsLive, m.HomeScore, m.AwayScore, m.Round, m.Season, m.Venue, now, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update match %d: %w", m.ExternalID, err)
	}
	m.UpdatedAt = now
	return nil
}

// UpcomingMatchesForOdds returns scheduled, bettable matches with an external
// id that start within [from, until], earliest first.
func (db *DB) UpcomingMatchesForOdds(ctx context.Context, from, until time.Time, limit int) ([]models.Match, error) {
	return db.listMatches(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE status = ? AND betting_enabled = ? AND external_id > 0 AND start_time >= ? AND start_time <= ?
        ORDER BY start_time ASC LIMIT ?`,
		models.MatchStatusScheduled, true, from.UTC(), until.UTC(), limit)
}

// LiveMatchesForOdds returns in-play bettable matches.
func (db *DB) LiveMatchesForOdds(ctx context.Context, limit int) ([]models.Match, error) {
	return db.listMatches(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE is_live = ? AND status = ? AND betting_enabled = ? AND external_id > 0
        ORDER BY start_time ASC LIMIT ?`,
		true, models.MatchStatusLive, true, limit)
}

func (db *DB) SetMatchBetting(ctx context.Context, id int64, enabled bool) error {
	_, err := db.exec(ctx, `UPDATE matches SET betting_enabled = ?, updated_at = ? WHERE id = ?`, enabled, utcNow(), id)
	return err
}

func (db *DB) listMatches(ctx context.Context, query string, args ...any) ([]models.Match, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}
