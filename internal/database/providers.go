package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sportsync/internal/models"
)

const providerColumns = `id, name, base_url, api_key, headers, timeout_ms, is_active, daily_usage, monthly_usage,
        error_count, health_score, last_request_at, usage_reset_on, created_at, updated_at`

func scanProvider(s rowScanner) (*models.DataProvider, error) {
	var (
		p       models.DataProvider
		headers string
	)
	err := s.Scan(&p.ID, &p.Name, &p.BaseURL, &p.APIKey, &headers, &p.TimeoutMS, &p.IsActive,
		&p.DailyUsage, &p.MonthlyUsage, &p.ErrorCount, &p.HealthScore, &p.LastRequestAt,
		&p.UsageResetOn, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Headers = map[string]string{}
	if headers != "" {
		if err := json.Unmarshal([]byte(headers), &p.Headers); err != nil {
			return nil, fmt.Errorf("decode provider headers: %w", err)
		}
	}
	return &p, nil
}

// EnsureProvider upserts the connection descriptor by name, keeping the
// usage and health counters of an existing record.
func (db *DB) EnsureProvider(ctx context.Context, p *models.DataProvider) (*models.DataProvider, error) {
	headers, err := json.Marshal(p.Headers)
	if err != nil {
		return nil, err
	}
	now := utcNow()
	_, err = db.exec(ctx, `
        INSERT INTO data_providers (name, base_url, api_key, headers, timeout_ms, is_active, health_score, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (name) DO UPDATE SET
            base_url = excluded.base_url,
            api_key = excluded.api_key,
            headers = excluded.headers,
            timeout_ms = excluded.timeout_ms,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at`,
		p.Name, p.BaseURL, p.APIKey, string(headers), p.TimeoutMS, p.IsActive, models.HealthScoreMax, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure provider %s: %w", p.Name, err)
	}
	return db.GetProviderByName(ctx, p.Name)
}

func (db *DB) GetProviderByName(ctx context.Context, name string) (*models.DataProvider, error) {
	p, err := scanProvider(db.queryRow(ctx, `SELECT `+providerColumns+` FROM data_providers WHERE name = ?`, name))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (db *DB) GetProvider(ctx context.Context, id int64) (*models.DataProvider, error) {
	p, err := scanProvider(db.queryRow(ctx, `SELECT `+providerColumns+` FROM data_providers WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// RecordProviderSuccess bumps daily/monthly usage in one statement, rolling
// the counters over when the stored reset day or month differs from now, and
// nudges the health score back up.
func (db *DB) RecordProviderSuccess(ctx context.Context, id int64, at time.Time) error {
	at = at.UTC()
	day := at.Format(models.DateLayout)
	month := at.Format("2006-01")
	_, err := db.exec(ctx, `
        UPDATE data_providers SET
            daily_usage = CASE WHEN usage_reset_on = ? THEN daily_usage + 1 ELSE 1 END,
            monthly_usage = CASE WHEN substr(usage_reset_on, 1, 7) = ? THEN monthly_usage + 1 ELSE 1 END,
            usage_reset_on = ?,
            health_score = CASE WHEN health_score + ? > ? THEN ? ELSE health_score + ? END,
            last_request_at = ?,
            updated_at = ?
        WHERE id = ?`,
		day, month, day,
		models.HealthRecovery, models.HealthScoreMax, models.HealthScoreMax, models.HealthRecovery,
		at, at, id,
	)
	return err
}

// RecordProviderFailure decrements health (floored at 0) and, for hard
// failures, increments error_count.
func (db *DB) RecordProviderFailure(ctx context.Context, id int64, hard bool, at time.Time) error {
	errInc := 0
	if hard {
		errInc = 1
	}
	at = at.UTC()
	_, err := db.exec(ctx, `
        UPDATE data_providers SET
            error_count = error_count + ?,
            health_score = CASE WHEN health_score - ? < 0 THEN 0 ELSE health_score - ? END,
            last_request_at = ?,
            updated_at = ?
        WHERE id = ?`,
		errInc, models.HealthPenalty, models.HealthPenalty, at, at, id,
	)
	return err
}

func (db *DB) CreateRequestLog(ctx context.Context, l *models.APIRequestLog) error {
	params, err := json.Marshal(l.Params)
	if err != nil {
		return err
	}
	headers, err := json.Marshal(l.Headers)
	if err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utcNow()
	}
	id, err := db.insertID(ctx, `
        INSERT INTO api_request_logs (provider_id, endpoint, params, headers, status_code, duration_ms, success,
            error_message, response_body, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`,
		l.ProviderID, l.Endpoint, string(params), string(headers), l.StatusCode, l.DurationMS, l.Success,
		l.ErrorMessage, rawOrNil(l.ResponseBody), l.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create request log: %w", err)
	}
	l.ID = id
	return nil
}

// ListRequestLogs returns the most recent logs, optionally for one endpoint.
func (db *DB) ListRequestLogs(ctx context.Context, endpoint string, limit int) ([]models.APIRequestLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, provider_id, endpoint, params, headers, status_code, duration_ms, success,
        error_message, response_body, created_at FROM api_request_logs`
	var args []any
	if endpoint != "" {
		query += ` WHERE endpoint = ?`
		args = append(args, endpoint)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.APIRequestLog
	for rows.Next() {
		var (
			l       models.APIRequestLog
			params  string
			headers string
			body    sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ProviderID, &l.Endpoint, &params, &headers, &l.StatusCode,
			&l.DurationMS, &l.Success, &l.ErrorMessage, &body, &l.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(params), &l.Params)
		_ = json.Unmarshal([]byte(headers), &l.Headers)
		l.ResponseBody = nullString(body)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (db *DB) DeleteRequestLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.exec(ctx, `DELETE FROM api_request_logs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EntityCounts reports row counts per synced entity table.
func (db *DB) EntityCounts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, table := range []string{"leagues", "teams", "matches", "odds"} {
		var n int
		if err := db.queryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}
