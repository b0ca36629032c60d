package database

import (
	"context"
	"fmt"

	"sportsync/internal/models"
)

const leagueColumns = `id, external_id, sport_id, name, type, country, logo, season, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeague(s rowScanner) (*models.League, error) {
	var l models.League
	err := s.Scan(&l.ID, &l.ExternalID, &l.SportID, &l.Name, &l.Type, &l.Country, &l.Logo,
		&l.Season, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SportID resolves a sport code to its local id.
func (db *DB) SportID(ctx context.Context, code string) (int64, error) {
	var id int64
	err := db.queryRow(ctx, `SELECT id FROM sports WHERE code = ?`, code).Scan(&id)
	if err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func (db *DB) FindLeagueByExternalID(ctx context.Context, externalID int64) (*models.League, error) {
	l, err := scanLeague(db.queryRow(ctx,
		`SELECT `+leagueColumns+` FROM leagues WHERE external_id = ?`, externalID))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (db *DB) CreateLeague(ctx context.Context, l *models.League) error {
	now := utcNow()
	id, err := db.insertID(ctx, `
        INSERT INTO leagues (external_id, sport_id, name, type, country, logo, season, is_active, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`,
		l.ExternalID, l.SportID, l.Name, l.Type, l.Country, l.Logo, l.Season, l.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("create league %d: %w", l.ExternalID, err)
	}
	l.ID = id
	l.CreatedAt = now
	l.UpdatedAt = now
	return nil
}

// UpdateLeague refreshes provider-owned fields. is_active is operator-owned
// and left untouched.
func (db *DB) UpdateLeague(ctx context.Context, l *models.League) error {
	now := utcNow()
	_, err := db.exec(ctx, `
        UPDATE leagues SET name = ?, type = ?, country = ?, logo = ?, season = ?, updated_at = ?
        WHERE id = ?`,
		l.Name, l.Type, l.Country, l.Logo, l.Season, now, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update league %d: %w", l.ExternalID, err)
	}
	l.UpdatedAt = now
	return nil
}

func (db *DB) SetLeagueActive(ctx context.Context, externalID int64, active bool) error {
	res, err := db.exec(ctx, `UPDATE leagues SET is_active = ?, updated_at = ? WHERE external_id = ?`,
		active, utcNow(), externalID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) ListLeagues(ctx context.Context, activeOnly bool) ([]models.League, error) {
	query := `SELECT ` + leagueColumns + ` FROM leagues`
	var args []any
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY external_id`

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leagues []models.League
	for rows.Next() {
		l, err := scanLeague(rows)
		if err != nil {
			return nil, err
		}
		leagues = append(leagues, *l)
	}
	return leagues, rows.Err()
}
