package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/database"
	"sportsync/internal/domain"
	"sportsync/internal/events"
	"sportsync/internal/logging"
	"sportsync/internal/metrics"
	"sportsync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the job record persistence used by the queue.
type Store interface {
	CreateJob(ctx context.Context, j *models.SyncJob) error
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	FindActiveJobByType(ctx context.Context, jobType models.JobType) (*models.SyncJob, error)
	ListActiveJobs(ctx context.Context) ([]models.SyncJob, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]models.SyncJob, int, error)
	MarkJobProcessing(ctx context.Context, id string) (bool, error)
	MarkJobCompleted(ctx context.Context, id string, result []byte) (bool, error)
	MarkJobFailed(ctx context.Context, id, message, stack string) (bool, error)
	MarkUnqueuedJobFailed(ctx context.Context, id, message string) (bool, error)
	CancelJob(ctx context.Context, id string, message string, from ...models.JobStatus) (bool, error)
	UpdateJobProgress(ctx context.Context, id string, u models.JobUpdate) (bool, error)
	SetJobQueueID(ctx context.Context, id, queueJobID string) error
	DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	JobStats(ctx context.Context) (*models.JobStats, error)
}

// CreateRequest describes a job to create. The job type is the params variant's.
type CreateRequest struct {
	Params      models.JobParams
	Priority    models.JobPriority
	TriggeredBy string
	Delay       time.Duration
}

// Queue owns the job lifecycle: it keeps the persisted record and the
// engine's work item in step.
type Queue struct {
	store  Store
	engine Engine
	bus    domain.EventPublisher
	cfg    config.JobsConfig
	retry  RetryPolicy
	logger *zerolog.Logger
	now    func() time.Time

	// createMu serializes the active-job check and insert within the process.
	createMu sync.Mutex
}

func NewQueue(store Store, engine Engine, bus domain.EventPublisher, cfg config.JobsConfig, logger *zerolog.Logger) *Queue {
	return &Queue{
		store:  store,
		engine: engine,
		bus:    bus,
		cfg:    cfg,
		retry:  retryPolicyFromConfig(cfg.RetryBackoff),
		logger: logging.Component(logger, "job_queue"),
		now:    time.Now,
	}
}

func lookupErr(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrJobNotFound
	}
	return err
}

// CreateJob returns the already active job of the same type when there is
// one (created=false). Otherwise it persists a pending job and enqueues it
// under the job's id.
func (q *Queue) CreateJob(ctx context.Context, req CreateRequest) (*models.SyncJob, bool, error) {
	if req.Params == nil {
		return nil, false, fmt.Errorf("%w: missing params", models.ErrUnknownJobType)
	}
	raw, err := models.EncodeParams(req.Params)
	if err != nil {
		return nil, false, fmt.Errorf("encode params: %w", err)
	}
	return q.create(ctx, req.Params.JobType(), raw, req, 0, nil)
}

func (q *Queue) create(ctx context.Context, jobType models.JobType, params json.RawMessage, req CreateRequest,
	retryCount int, parentID *string) (*models.SyncJob, bool, error) {
	if !jobType.Valid() {
		return nil, false, fmt.Errorf("%w: %q", models.ErrUnknownJobType, jobType)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.TriggeredByAPI
	}

	q.createMu.Lock()
	defer q.createMu.Unlock()

	existing, err := q.store.FindActiveJobByType(ctx, jobType)
	if err == nil {
		q.logger.Debug().Str("job_id", existing.ID).Str("type", string(jobType)).Msg("active job exists, reusing")
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, fmt.Errorf("find active %s job: %w", jobType, err)
	}

	job := &models.SyncJob{
		ID:          uuid.NewString(),
		Type:        jobType,
		Status:      models.JobPending,
		Priority:    req.Priority,
		Params:      params,
		RetryCount:  retryCount,
		MaxRetries:  q.cfg.MaxRetries,
		TriggeredBy: req.TriggeredBy,
		ParentJobID: parentID,
	}
	if req.Delay > 0 {
		at := q.now().UTC().Add(req.Delay)
		job.ScheduledAt = &at
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		if database.IsUniqueViolation(err) {
			// Another process won the race for this type.
			if existing, ferr := q.store.FindActiveJobByType(ctx, jobType); ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("persist %s job: %w", jobType, err)
	}

	item := WorkItem{ID: job.ID, Type: job.Type, Priority: job.Priority.Rank(), EnqueuedAt: q.now().UTC()}
	if err := q.engine.Enqueue(ctx, item, req.Delay); err != nil {
		if _, ferr := q.store.MarkUnqueuedJobFailed(ctx, job.ID, "enqueue failed: "+err.Error()); ferr != nil {
			q.logger.Error().Err(ferr).Str("job_id", job.ID).Msg("failed to mark unqueued job")
		}
		return nil, false, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	if err := q.store.SetJobQueueID(ctx, job.ID, job.ID); err != nil {
		q.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to store queue id")
	} else {
		job.QueueJobID = job.ID
	}

	metrics.IncJob(string(job.Type), "created")
	q.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("priority", string(job.Priority)).
		Str("triggered_by", job.TriggeredBy).
		Dur("delay", req.Delay).
		Msg("job created")
	q.publish(events.EventJobCreated, job, "", "")
	return job, true, nil
}

func (q *Queue) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, lookupErr(err)
	}
	return job, nil
}

func (q *Queue) ListJobs(ctx context.Context, f models.JobFilter) ([]models.SyncJob, int, error) {
	return q.store.ListJobs(ctx, f)
}

func (q *Queue) Stats(ctx context.Context) (*models.JobStats, error) {
	return q.store.JobStats(ctx)
}

// MarkAsProcessing moves a pending job to processing. A job that is already
// processing is left as is. Terminal jobs yield ErrInvalidTransition.
func (q *Queue) MarkAsProcessing(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case models.JobProcessing:
		return job, nil
	case models.JobPending:
	default:
		return nil, fmt.Errorf("%w: %s job %s cannot start", ErrInvalidTransition, job.Status, id)
	}

	ok, err := q.store.MarkJobProcessing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mark job %s processing: %w", id, err)
	}
	if !ok {
		// Cancelled or started by another worker since the read.
		return q.recheckStarted(ctx, id)
	}

	job, err = q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.IncJob(string(job.Type), string(models.JobProcessing))
	q.logger.Info().Str("job_id", id).Str("type", string(job.Type)).Msg("job started")
	q.publish(events.EventJobStarted, job, "", "")
	return job, nil
}

// recheckStarted resolves a lost update race on start.
func (q *Queue) recheckStarted(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobProcessing {
		return job, nil
	}
	return nil, fmt.Errorf("%w: %s job %s cannot start", ErrInvalidTransition, job.Status, id)
}

// MarkAsCompleted stores result on a processing job. A job force-released
// while running stays cancelled and the result is discarded.
func (q *Queue) MarkAsCompleted(ctx context.Context, id string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result of job %s: %w", id, err)
	}
	ok, err := q.store.MarkJobCompleted(ctx, id, raw)
	if err != nil {
		return fmt.Errorf("mark job %s completed: %w", id, err)
	}
	job, gerr := q.GetJob(ctx, id)
	if gerr != nil {
		return gerr
	}
	if !ok {
		return fmt.Errorf("%w: %s job %s cannot complete", ErrInvalidTransition, job.Status, id)
	}

	metrics.IncJob(string(job.Type), string(models.JobCompleted))
	q.observeDuration(job)
	summary := summarize(result)
	q.logger.Info().Str("job_id", id).Str("type", string(job.Type)).Str("summary", summary).Msg("job completed")
	q.publish(events.EventJobCompleted, job, "", summary)
	return nil
}

// MarkAsFailed records cause against a processing job and bumps the retry
// count. Failed jobs are never requeued automatically; see RetryJob.
func (q *Queue) MarkAsFailed(ctx context.Context, id string, cause error, stack string) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	ok, err := q.store.MarkJobFailed(ctx, id, msg, stack)
	if err != nil {
		return fmt.Errorf("mark job %s failed: %w", id, err)
	}
	job, gerr := q.GetJob(ctx, id)
	if gerr != nil {
		return gerr
	}
	if !ok {
		return fmt.Errorf("%w: %s job %s cannot fail", ErrInvalidTransition, job.Status, id)
	}

	metrics.IncJob(string(job.Type), string(models.JobFailed))
	q.observeDuration(job)
	q.logger.Error().Str("job_id", id).Str("type", string(job.Type)).Int("retry_count", job.RetryCount).
		Str("error", msg).Msg("job failed")
	q.publish(events.EventJobFailed, job, msg, "")
	return nil
}

// CancelJob cancels a pending job and drops its queued work item. It
// reports false for jobs in any other state.
func (q *Queue) CancelJob(ctx context.Context, id string) (bool, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status != models.JobPending {
		return false, nil
	}
	ok, err := q.store.CancelJob(ctx, id, "", models.JobPending)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	q.dropWorkItem(ctx, id)

	job.Status = models.JobCancelled
	metrics.IncJob(string(job.Type), string(models.JobCancelled))
	q.logger.Info().Str("job_id", id).Str("type", string(job.Type)).Msg("job cancelled")
	q.publish(events.EventJobCancelled, job, "", "")
	return true, nil
}

// ForceReleaseJob cancels a pending or processing job regardless of what
// the engine believes. Work still running for it completes on its own and
// its result is discarded.
func (q *Queue) ForceReleaseJob(ctx context.Context, id string) (bool, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if !job.Status.Active() {
		return false, nil
	}
	ok, err := q.store.CancelJob(ctx, id, models.ForceReleasedMessage, models.JobPending, models.JobProcessing)
	if err != nil {
		return false, fmt.Errorf("force release job %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	q.dropWorkItem(ctx, id)

	job.Status = models.JobCancelled
	metrics.IncJob(string(job.Type), "force_released")
	q.logger.Warn().Str("job_id", id).Str("type", string(job.Type)).Msg("job force released")
	q.publish(events.EventJobForceReleased, job, models.ForceReleasedMessage, "")
	return true, nil
}

// ForceReleaseByType force-releases every active job of jobType.
func (q *Queue) ForceReleaseByType(ctx context.Context, jobType models.JobType) (int, error) {
	if !jobType.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownJobType, jobType)
	}
	active, err := q.store.ListActiveJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}
	released := 0
	for _, j := range active {
		if j.Type != jobType {
			continue
		}
		ok, err := q.ForceReleaseJob(ctx, j.ID)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	return released, nil
}

func (q *Queue) dropWorkItem(ctx context.Context, id string) {
	if _, err := q.engine.Remove(ctx, id); err != nil {
		q.logger.Warn().Err(err).Str("job_id", id).Msg("failed to remove queued work item")
	}
}

// RetryJob creates a fresh job with the type and params of a failed or
// cancelled one. With backoff enabled the new job is delayed according to
// the previous retry count.
func (q *Queue) RetryJob(ctx context.Context, id string, triggeredBy string) (*models.SyncJob, bool, error) {
	prev, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if prev.Status != models.JobFailed && prev.Status != models.JobCancelled {
		return nil, false, fmt.Errorf("%w: %s job %s cannot be retried", ErrInvalidTransition, prev.Status, id)
	}
	if prev.MaxRetries > 0 && prev.RetryCount >= prev.MaxRetries {
		return nil, false, fmt.Errorf("%w: %d of %d", ErrRetryLimit, prev.RetryCount, prev.MaxRetries)
	}
	if triggeredBy == "" {
		triggeredBy = models.TriggeredByRetry
	}
	req := CreateRequest{
		Priority:    prev.Priority,
		TriggeredBy: triggeredBy,
		Delay:       q.retry.DelayFor(prev.RetryCount),
	}
	parent := prev.ID
	return q.create(ctx, prev.Type, prev.Params, req, prev.RetryCount, &parent)
}

// UpdateJob applies incremental progress to an active job.
func (q *Queue) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	ok, err := q.store.UpdateJobProgress(ctx, id, u)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if !ok {
		if _, err := q.GetJob(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// CleanupOldJobs deletes terminal jobs older than days; days <= 0 uses the
// configured retention.
func (q *Queue) CleanupOldJobs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = q.cfg.RetentionDays
	}
	cutoff := q.now().UTC().AddDate(0, 0, -days)
	n, err := q.store.DeleteJobsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	q.logger.Info().Int64("deleted", n).Int("older_than_days", days).Msg("old jobs cleaned up")
	return n, nil
}

// QueueCounts combines engine depth with stored job states.
func (q *Queue) QueueCounts(ctx context.Context) (*models.QueueCounts, error) {
	waiting, delayed, err := q.engine.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	stats, err := q.store.JobStats(ctx)
	if err != nil {
		return nil, err
	}
	counts := &models.QueueCounts{
		Waiting:   waiting,
		Active:    int64(stats.ByStatus[models.JobProcessing]),
		Completed: int64(stats.ByStatus[models.JobCompleted]),
		Failed:    int64(stats.ByStatus[models.JobFailed]),
		Delayed:   delayed,
	}
	metrics.SetQueueDepth("waiting", counts.Waiting)
	metrics.SetQueueDepth("delayed", counts.Delayed)
	metrics.SetQueueDepth("active", counts.Active)
	return counts, nil
}

// Recover re-enqueues pending jobs after a restart. Processing jobs left by
// a crashed worker are reported as stalled and wait for a force release.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	active, err := q.store.ListActiveJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}
	requeued := 0
	for i := range active {
		j := &active[i]
		if j.Status == models.JobProcessing {
			q.logger.Warn().Str("job_id", j.ID).Str("type", string(j.Type)).Msg("job was processing before restart")
			q.publish(events.EventJobStalled, j, "processing before restart", "")
			continue
		}
		var delay time.Duration
		if j.ScheduledAt != nil {
			delay = j.ScheduledAt.Sub(q.now())
		}
		if _, err := q.engine.Remove(ctx, j.ID); err != nil {
			return requeued, err
		}
		item := WorkItem{ID: j.ID, Type: j.Type, Priority: j.Priority.Rank(), EnqueuedAt: q.now().UTC()}
		if err := q.engine.Enqueue(ctx, item, delay); err != nil {
			return requeued, fmt.Errorf("requeue job %s: %w", j.ID, err)
		}
		requeued++
	}
	if requeued > 0 {
		q.logger.Info().Int("requeued", requeued).Msg("pending jobs recovered")
	}
	return requeued, nil
}

func (q *Queue) observeDuration(job *models.SyncJob) {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return
	}
	metrics.ObserveJobDuration(string(job.Type), job.CompletedAt.Sub(*job.StartedAt).Seconds())
}

func (q *Queue) publish(eventType string, job *models.SyncJob, errMsg, summary string) {
	if q.bus == nil {
		return
	}
	err := q.bus.PublishJSON(eventType, events.JobEventPayload{
		JobID:       job.ID,
		Type:        string(job.Type),
		Status:      string(job.Status),
		TriggeredBy: job.TriggeredBy,
		Error:       errMsg,
		RetryCount:  job.RetryCount,
		Summary:     summary,
		At:          q.now().UTC(),
	})
	if err != nil {
		q.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish job event")
	}
}

func summarize(result any) string {
	switch r := result.(type) {
	case *models.SyncResult:
		return fmt.Sprintf("%s: fetched=%d created=%d updated=%d unchanged=%d skipped=%d errors=%d",
			r.Entity, r.TotalFetched, r.Created, r.Updated, r.Unchanged, r.Skipped, len(r.Errors))
	case *models.FullSyncResult:
		return fmt.Sprintf("full_sync success=%t steps=%d errors=%d", r.Success, len(r.Steps), len(r.Total.Errors))
	default:
		return ""
	}
}
