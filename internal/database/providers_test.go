package database

import (
	"context"
	"testing"
	"time"

	"sportsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProvider(t *testing.T, db *DB) *models.DataProvider {
	t.Helper()
	p, err := db.EnsureProvider(context.Background(), &models.DataProvider{
		Name:      models.DefaultProviderName,
		BaseURL:   "https://v3.football.api-sports.io",
		APIKey:    "secret",
		Headers:   map[string]string{models.DefaultAPIKeyHeader: models.APIKeyPlaceholder},
		TimeoutMS: 30000,
		IsActive:  true,
	})
	require.NoError(t, err)
	return p
}

func TestEnsureProviderKeepsCounters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := seedProvider(t, db)
	assert.Equal(t, models.HealthScoreMax, p.HealthScore)
	assert.Equal(t, "{key}", p.Headers[models.DefaultAPIKeyHeader])

	require.NoError(t, db.RecordProviderSuccess(ctx, p.ID, time.Now()))

	updated, err := db.EnsureProvider(ctx, &models.DataProvider{
		Name:     models.DefaultProviderName,
		BaseURL:  "https://other.example",
		APIKey:   "rotated",
		Headers:  map[string]string{"Authorization": "Bearer {key}"},
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, "rotated", updated.APIKey)
	assert.Equal(t, "https://other.example", updated.BaseURL)
	assert.Equal(t, 1, updated.DailyUsage)
}

func TestProviderUsageRollover(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProvider(t, db)

	day1 := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.RecordProviderSuccess(ctx, p.ID, day1))
	require.NoError(t, db.RecordProviderSuccess(ctx, p.ID, day1.Add(time.Hour)))

	got, err := db.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DailyUsage)
	assert.Equal(t, 2, got.MonthlyUsage)
	assert.Equal(t, "2024-01-31", got.UsageResetOn)

	// next day, next month: both roll over
	require.NoError(t, db.RecordProviderSuccess(ctx, p.ID, day1.Add(24*time.Hour)))
	got, err = db.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DailyUsage)
	assert.Equal(t, 1, got.MonthlyUsage)

	// same month, next day: only daily rolls over
	require.NoError(t, db.RecordProviderSuccess(ctx, p.ID, day1.Add(48*time.Hour)))
	got, err = db.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DailyUsage)
	assert.Equal(t, 2, got.MonthlyUsage)
}

func TestProviderHealthClamp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProvider(t, db)

	require.NoError(t, db.RecordProviderSuccess(ctx, p.ID, time.Now()))
	got, err := db.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HealthScoreMax, got.HealthScore, "health never exceeds max")

	for i := 0; i < 25; i++ {
		require.NoError(t, db.RecordProviderFailure(ctx, p.ID, i%2 == 0, time.Now()))
	}
	got, err = db.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.HealthScore)
	assert.Equal(t, 13, got.ErrorCount)
	assert.NotNil(t, got.LastRequestAt)
}

func TestRequestLogs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProvider(t, db)

	for _, endpoint := range []string{"/leagues", "/fixtures", "/fixtures"} {
		require.NoError(t, db.CreateRequestLog(ctx, &models.APIRequestLog{
			ProviderID:   p.ID,
			Endpoint:     endpoint,
			Params:       map[string]string{"season": "2024"},
			Headers:      map[string]string{models.DefaultAPIKeyHeader: models.RedactedValue},
			StatusCode:   200,
			DurationMS:   12,
			Success:      true,
			ResponseBody: []byte(`{"results":0}`),
		}))
	}

	logs, err := db.ListRequestLogs(ctx, "/fixtures", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "2024", logs[0].Params["season"])
	assert.Equal(t, models.RedactedValue, logs[0].Headers[models.DefaultAPIKeyHeader])
	assert.JSONEq(t, `{"results":0}`, string(logs[0].ResponseBody))

	n, err := db.DeleteRequestLogsOlderThan(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
