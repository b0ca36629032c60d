package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sportsync/internal/models"
)

const jobColumns = `id, type, status, priority, params, progress, total_items, processed_items, result,
        error_message, error_stack, retry_count, max_retries, scheduled_at, started_at, completed_at,
        triggered_by, queue_job_id, parent_job_id, created_at, updated_at`

func scanJob(s rowScanner) (*models.SyncJob, error) {
	var (
		j      models.SyncJob
		params sql.NullString
		result sql.NullString
	)
	err := s.Scan(&j.ID, &j.Type, &j.Status, &j.Priority, &params, &j.Progress, &j.TotalItems,
		&j.ProcessedItems, &result, &j.ErrorMessage, &j.ErrorStack, &j.RetryCount, &j.MaxRetries,
		&j.ScheduledAt, &j.StartedAt, &j.CompletedAt, &j.TriggeredBy, &j.QueueJobID, &j.ParentJobID,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Params = nullString(params)
	j.Result = nullString(result)
	return &j, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []models.JobStatus) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}

// CreateJob inserts a pending job. A concurrent active job of the same type
// surfaces as a unique violation (see IsUniqueViolation).
func (db *DB) CreateJob(ctx context.Context, j *models.SyncJob) error {
	now := utcNow()
	if j.Status == "" {
		j.Status = models.JobPending
	}
	if len(j.Params) == 0 {
		j.Params = []byte("{}")
	}
	_, err := db.exec(ctx, `
        INSERT INTO sync_jobs (id, type, status, priority, params, progress, total_items, processed_items,
            retry_count, max_retries, scheduled_at, triggered_by, queue_job_id, parent_job_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Type), string(j.Status), string(j.Priority), string(j.Params), j.RetryCount,
		j.MaxRetries, j.ScheduledAt, j.TriggeredBy, j.QueueJobID, j.ParentJobID, now, now,
	)
	if err != nil {
		return err
	}
	j.CreatedAt = now
	j.UpdatedAt = now
	return nil
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	j, err := scanJob(db.queryRow(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

// FindActiveJobByType returns the pending or processing job of a type.
func (db *DB) FindActiveJobByType(ctx context.Context, jobType models.JobType) (*models.SyncJob, error) {
	j, err := scanJob(db.queryRow(ctx, `
        SELECT `+jobColumns+` FROM sync_jobs
        WHERE type = ? AND status IN (?, ?)
        ORDER BY created_at ASC LIMIT 1`,
		string(jobType), string(models.JobPending), string(models.JobProcessing)))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

func (db *DB) ListActiveJobs(ctx context.Context) ([]models.SyncJob, error) {
	return db.listJobs(ctx, `
        SELECT `+jobColumns+` FROM sync_jobs WHERE status IN (?, ?) ORDER BY created_at ASC`,
		string(models.JobPending), string(models.JobProcessing))
}

// ListJobs returns a filtered page of jobs, newest first, and the total count.
func (db *DB) ListJobs(ctx context.Context, f models.JobFilter) ([]models.SyncJob, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.queryRow(ctx, `SELECT COUNT(*) FROM sync_jobs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	jobs, err := db.listJobs(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (db *DB) listJobs(ctx context.Context, query string, args ...any) ([]models.SyncJob, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkJobProcessing moves a pending job to processing. Reports false when the
// job was not pending.
func (db *DB) MarkJobProcessing(ctx context.Context, id string) (bool, error) {
	now := utcNow()
	return affected(db.exec(ctx, `
        UPDATE sync_jobs SET status = ?, started_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(models.JobProcessing), now, now, id, string(models.JobPending)))
}

// MarkJobCompleted finalizes a processing job with its result payload.
func (db *DB) MarkJobCompleted(ctx context.Context, id string, result []byte) (bool, error) {
	now := utcNow()
	return affected(db.exec(ctx, `
        UPDATE sync_jobs SET status = ?, progress = 100, result = ?, completed_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(models.JobCompleted), rawOrNil(result), now, now, id, string(models.JobProcessing)))
}

// MarkJobFailed records the failure of a processing job and bumps
// retry_count.
func (db *DB) MarkJobFailed(ctx context.Context, id, message, stack string) (bool, error) {
	now := utcNow()
	var stackArg any
	if stack != "" {
		stackArg = stack
	}
	return affected(db.exec(ctx, `
        UPDATE sync_jobs SET status = ?, error_message = ?, error_stack = ?, retry_count = retry_count + 1,
            completed_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(models.JobFailed), message, stackArg, now, now, id, string(models.JobProcessing)))
}

// MarkUnqueuedJobFailed fails a pending job whose work item never reached
// the queue. No attempt ran, so retry_count is left alone.
func (db *DB) MarkUnqueuedJobFailed(ctx context.Context, id, message string) (bool, error) {
	now := utcNow()
	return affected(db.exec(ctx, `
        UPDATE sync_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(models.JobFailed), message, now, now, id, string(models.JobPending)))
}

// CancelJob moves a job to cancelled if its current status is one of from.
func (db *DB) CancelJob(ctx context.Context, id string, message string, from ...models.JobStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	now := utcNow()
	var msgArg any
	if message != "" {
		msgArg = message
	}
	args := []any{string(models.JobCancelled), msgArg, now, now, id}
	args = append(args, statusArgs(from)...)
	return affected(db.exec(ctx, `
        UPDATE sync_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
        WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...))
}

// UpdateJobProgress applies the non-nil fields of u to an active job.
func (db *DB) UpdateJobProgress(ctx context.Context, id string, u models.JobUpdate) (bool, error) {
	var (
		sets []string
		args []any
	)
	if u.Progress != nil {
		p := *u.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		sets = append(sets, "progress = ?")
		args = append(args, p)
	}
	if u.TotalItems != nil {
		sets = append(sets, "total_items = ?")
		args = append(args, *u.TotalItems)
	}
	if u.ProcessedItems != nil {
		sets = append(sets, "processed_items = ?")
		args = append(args, *u.ProcessedItems)
	}
	if len(sets) == 0 {
		return false, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, utcNow(), id, string(models.JobPending), string(models.JobProcessing))

	return affected(db.exec(ctx, `
        UPDATE sync_jobs SET `+strings.Join(sets, ", ")+`
        WHERE id = ? AND status IN (?, ?)`, args...))
}

func (db *DB) SetJobQueueID(ctx context.Context, id, queueJobID string) error {
	_, err := db.exec(ctx, `UPDATE sync_jobs SET queue_job_id = ?, updated_at = ? WHERE id = ?`, queueJobID, utcNow(), id)
	return err
}

// DeleteJobsOlderThan removes terminal jobs last touched before cutoff.
func (db *DB) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.exec(ctx, `
        DELETE FROM sync_jobs
        WHERE status IN (?, ?, ?) AND COALESCE(completed_at, updated_at) < ?`,
		string(models.JobCompleted), string(models.JobCancelled), string(models.JobFailed), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) JobStats(ctx context.Context) (*models.JobStats, error) {
	rows, err := db.query(ctx, `SELECT type, status, COUNT(*) FROM sync_jobs GROUP BY type, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.JobStats{
		ByStatus: make(map[models.JobStatus]int),
		ByType:   make(map[models.JobType]int),
	}
	for rows.Next() {
		var (
			jobType string
			status  string
			count   int
		)
		if err := rows.Scan(&jobType, &status, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[models.JobStatus(status)] += count
		stats.ByType[models.JobType(jobType)] += count
	}
	return stats, rows.Err()
}
