package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"sportsync/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(jobType models.JobType) *models.SyncJob {
	return &models.SyncJob{
		ID:          uuid.NewString(),
		Type:        jobType,
		Priority:    models.PriorityNormal,
		Params:      []byte(`{}`),
		MaxRetries:  3,
		TriggeredBy: models.TriggeredByAPI,
	}
}

func TestJobLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := newJob(models.JobTypeLeague)
	require.NoError(t, db.CreateJob(ctx, job))

	active, err := db.FindActiveJobByType(ctx, models.JobTypeLeague)
	require.NoError(t, err)
	assert.Equal(t, job.ID, active.ID)

	ok, err := db.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second transition must not apply")

	progress, total := 40, 10
	ok, err = db.UpdateJobProgress(ctx, job.ID, models.JobUpdate{Progress: &progress, TotalItems: &total})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.MarkJobCompleted(ctx, job.ID, []byte(`{"created":3}`))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 10, got.TotalItems)
	assert.JSONEq(t, `{"created":3}`, string(got.Result))
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	// terminal states are immutable
	ok, err = db.MarkJobFailed(ctx, job.ID, "late", "")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = db.CancelJob(ctx, job.ID, models.ForceReleasedMessage, models.JobPending, models.JobProcessing)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = db.UpdateJobProgress(ctx, job.ID, models.JobUpdate{Progress: &progress})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.FindActiveJobByType(ctx, models.JobTypeLeague)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkJobFailedIncrementsRetry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := newJob(models.JobTypeTeam)
	require.NoError(t, db.CreateJob(ctx, job))
	_, err := db.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)

	ok, err := db.MarkJobFailed(ctx, job.ID, "provider down", "goroutine 1 [running]")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "provider down", *got.ErrorMessage)
	require.NotNil(t, got.ErrorStack)
}

func TestMarkJobFailedRequiresProcessing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := newJob(models.JobTypeTeam)
	require.NoError(t, db.CreateJob(ctx, job))

	ok, err := db.MarkJobFailed(ctx, job.ID, "too early", "")
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Zero(t, got.RetryCount)

	ok, err = db.MarkUnqueuedJobFailed(ctx, job.ID, "enqueue failed: closed")
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Zero(t, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "enqueue failed: closed", *got.ErrorMessage)

	// only pending jobs can be failed this way
	ok, err = db.MarkUnqueuedJobFailed(ctx, job.ID, "again")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveJobUniqueIndex(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateJob(ctx, newJob(models.JobTypeFixture)))
	err := db.CreateJob(ctx, newJob(models.JobTypeFixture))
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// a different type is unaffected
	require.NoError(t, db.CreateJob(ctx, newJob(models.JobTypeOddsLive)))
}

func TestConcurrentCreateJobSameType(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.CreateJob(ctx, newJob(models.JobTypeOddsUpcoming)); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestCancelJobFromPendingOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := newJob(models.JobTypeLeague)
	require.NoError(t, db.CreateJob(ctx, job))
	_, err := db.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)

	ok, err := db.CancelJob(ctx, job.ID, "", models.JobPending)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.CancelJob(ctx, job.ID, models.ForceReleasedMessage, models.JobPending, models.JobProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)
	assert.Equal(t, models.ForceReleasedMessage, *got.ErrorMessage)
}

func TestListJobsAndStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i, jt := range []models.JobType{models.JobTypeLeague, models.JobTypeTeam, models.JobTypeFixture} {
		job := newJob(jt)
		require.NoError(t, db.CreateJob(ctx, job))
		if i > 0 {
			_, err := db.MarkJobProcessing(ctx, job.ID)
			require.NoError(t, err)
			_, err = db.MarkJobFailed(ctx, job.ID, fmt.Sprintf("err %d", i), "")
			require.NoError(t, err)
		}
	}

	jobs, total, err := db.ListJobs(ctx, models.JobFilter{Status: models.JobFailed, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 1)

	jobs, total, err = db.ListJobs(ctx, models.JobFilter{Type: models.JobTypeLeague})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.JobPending, jobs[0].Status)

	future := time.Now().Add(time.Hour)
	_, total, err = db.ListJobs(ctx, models.JobFilter{From: &future})
	require.NoError(t, err)
	assert.Zero(t, total)

	stats, err := db.JobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[models.JobFailed])
	assert.Equal(t, 1, stats.ByType[models.JobTypeTeam])

	active, err := db.ListActiveJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestDeleteJobsOlderThan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	done := newJob(models.JobTypeLeague)
	require.NoError(t, db.CreateJob(ctx, done))
	_, err := db.MarkJobProcessing(ctx, done.ID)
	require.NoError(t, err)
	_, err = db.MarkJobCompleted(ctx, done.ID, nil)
	require.NoError(t, err)

	pending := newJob(models.JobTypeTeam)
	require.NoError(t, db.CreateJob(ctx, pending))

	n, err := db.DeleteJobsOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.DeleteJobsOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only terminal jobs are removed")

	_, err = db.GetJob(ctx, pending.ID)
	assert.NoError(t, err)
}
