package export

import (
	"bytes"
	"testing"
	"time"

	"sportsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteJobs(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	completed := started.Add(90 * time.Second)
	msg := "status 502"

	jobs := []models.SyncJob{
		{
			ID: "a", Type: models.JobTypeFixture, Status: models.JobCompleted, Priority: models.PriorityNormal,
			TriggeredBy: models.TriggeredByScheduler, Progress: 100, ProcessedItems: 22, TotalItems: 22,
			CreatedAt: created, StartedAt: &started, CompletedAt: &completed,
		},
		{
			ID: "b", Type: models.JobTypeOddsLive, Status: models.JobFailed, Priority: models.PriorityHigh,
			TriggeredBy: models.TriggeredByAPI, RetryCount: 1, ErrorMessage: &msg, CreatedAt: created,
		},
	}
	stats := &models.JobStats{
		Total:    2,
		ByStatus: map[models.JobStatus]int{models.JobCompleted: 1, models.JobFailed: 1},
		ByType:   map[models.JobType]int{models.JobTypeFixture: 1, models.JobTypeOddsLive: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJobs(&buf, jobs, stats, created, created.AddDate(0, 0, 1)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{jobsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(jobsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, jobColumns, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "completed", rows[1][2])
	assert.Equal(t, "2024-01-01 10:00:01", rows[1][10])
	assert.Equal(t, "90", rows[1][12])
	assert.Equal(t, "status 502", rows[2][13])

	title, err := f.GetCellValue(summarySheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Period: 2024-01-01 - 2024-01-02", title)
	stored, err := f.GetCellValue(summarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", stored)
}

func TestWriteJobs_Empty(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WriteJobs(&buf, nil, nil, now, now))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(jobsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFileName(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "jobs_2024-01-01_to_2024-01-07.xlsx", FileName(from, from.AddDate(0, 0, 6)))
}
