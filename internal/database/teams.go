package database

import (
	"context"
	"fmt"

	"sportsync/internal/models"
)

const teamColumns = `id, external_id, sport_id, name, code, country, logo, founded, created_at, updated_at`

func scanTeam(s rowScanner) (*models.Team, error) {
	var t models.Team
	err := s.Scan(&t.ID, &t.ExternalID, &t.SportID, &t.Name, &t.Code, &t.Country, &t.Logo,
		&t.Founded, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTeamByExternalID looks a team up by its natural key (external id, sport).
func (db *DB) FindTeamByExternalID(ctx context.Context, externalID, sportID int64) (*models.Team, error) {
	t, err := scanTeam(db.queryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE external_id = ? AND sport_id = ?`, externalID, sportID))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (db *DB) CreateTeam(ctx context.Context, t *models.Team) error {
	now := utcNow()
	id, err := db.insertID(ctx, `
        INSERT INTO teams (external_id, sport_id, name, code, country, logo, founded, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`,
		t.ExternalID, t.SportID, t.Name, t.Code, t.Country, t.Logo, t.Founded, now, now,
	)
	if err != nil {
		return fmt.Errorf("create team %d: %w", t.ExternalID, err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (db *DB) UpdateTeam(ctx context.Context, t *models.Team) error {
	now := utcNow()
	_, err := db.exec(ctx, `
        UPDATE teams SET name = ?, code = ?, country = ?, logo = ?, founded = ?, updated_at = ?
        WHERE id = ?`,
		t.Name, t.Code, t.Country, t.Logo, t.Founded, now, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update team %d: %w", t.ExternalID, err)
	}
	t.UpdatedAt = now
	return nil
}
