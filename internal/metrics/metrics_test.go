package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveProviderRequest("/fixtures", "ok", 0.2)
		IncCache(true)
		IncCache(false)
		IncJob("sync_leagues", "completed")
		ObserveJobDuration("sync_leagues", 1.5)
		SetQueueDepth("waiting", 3)
		IncBotCommand("jobs", "ok")
	})
}

func counterValue(t *testing.T, entity, action string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, syncItems.WithLabelValues(entity, action).Write(&m))
	return m.GetCounter().GetValue()
}

func TestAddSyncItemsSkipsZero(t *testing.T) {
	before := counterValue(t, "teams", "created")
	AddSyncItems("teams", 2, 0, 0)
	assert.Equal(t, before+2, counterValue(t, "teams", "created"))

	updatedBefore := counterValue(t, "teams", "updated")
	AddSyncItems("teams", 0, 0, 1)
	assert.Equal(t, updatedBefore, counterValue(t, "teams", "updated"))
}

func TestSetProviderHealth(t *testing.T) {
	SetProviderHealth(42)
	var m dto.Metric
	require.NoError(t, providerHealth.Write(&m))
	assert.Equal(t, float64(42), m.GetGauge().GetValue())
}
