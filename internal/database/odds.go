package database

import (
	"context"
	"fmt"

	"sportsync/internal/models"
)

const oddsColumns = `id, match_id, bet_type_id, selection, handicap, price, suspended, is_live, updated_at`

func scanOdds(s rowScanner) (*models.Odds, error) {
	var o models.Odds
	err := s.Scan(&o.ID, &o.MatchID, &o.BetTypeID, &o.Selection, &o.Handicap, &o.Price, &o.Suspended,
		&o.IsLive, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// BetTypeIDs maps bet type codes to local ids.
func (db *DB) BetTypeIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := db.query(ctx, `SELECT id, code FROM bet_types`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id   int64
			code string
		)
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		out[code] = id
	}
	return out, rows.Err()
}

// FindOdds looks a row up by (match, bet type, selection, handicap).
func (db *DB) FindOdds(ctx context.Context, matchID, betTypeID int64, selection, handicap string) (*models.Odds, error) {
	o, err := scanOdds(db.queryRow(ctx, `
        SELECT `+oddsColumns+` FROM odds
        WHERE match_id = ? AND bet_type_id = ? AND selection = ? AND handicap = ?`,
		matchID, betTypeID, selection, handicap))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (db *DB) CreateOdds(ctx context.Context, o *models.Odds) error {
	now := utcNow()
	id, err := db.insertID(ctx, `
        INSERT INTO odds (match_id, bet_type_id, selection, handicap, price, suspended, is_live, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`,
		o.MatchID, o.BetTypeID, o.Selection, o.Handicap, o.Price, o.Suspended, o.IsLive, now, now,
	)
	if err != nil {
		return fmt.Errorf("create odds %d/%d/%s: %w", o.MatchID, o.BetTypeID, o.Selection, err)
	}
	o.ID = id
	o.UpdatedAt = now
	return nil
}

func (db *DB) UpdateOdds(ctx context.Context, o *models.Odds) error {
	now := utcNow()
	_, err := db.exec(ctx, `UPDATE odds SET price = ?, suspended = ?, is_live = ?, updated_at = ? WHERE id = ?`,
		o.Price, o.Suspended, o.IsLive, now, o.ID)
	if err != nil {
		return fmt.Errorf("update odds %d: %w", o.ID, err)
	}
	o.UpdatedAt = now
	return nil
}

func (db *DB) ListOddsByMatch(ctx context.Context, matchID int64) ([]models.Odds, error) {
	rows, err := db.query(ctx, `SELECT `+oddsColumns+` FROM odds WHERE match_id = ? ORDER BY bet_type_id, selection, handicap`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Odds
	for rows.Next() {
		o, err := scanOdds(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
