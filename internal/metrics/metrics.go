package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sportsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_seconds",
			Help:      "Upstream provider request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	providerHealth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_health_score",
			Help:      "Current provider health score (0-100).",
		},
	)

	jobTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Sync job state transitions by type and status.",
		},
		[]string{"type", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Sync job processing time.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	syncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_items_total",
			Help:      "Entities touched by sync runs by entity and action.",
		},
		[]string{"entity", "action"},
	)

	stalledJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_stalled_total",
			Help:      "Jobs that exceeded their lock window without reporting progress.",
		},
		[]string{"type"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queued job ids by state (waiting, delayed, active).",
		},
		[]string{"state"},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Operator bot commands by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			providerRequests,
			providerLatency,
			cacheLookups,
			providerHealth,
			jobTransitions,
			jobDuration,
			syncItems,
			stalledJobs,
			queueDepth,
			botCommands,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveProviderRequest(endpoint, outcome string, seconds float64) {
	providerRequests.WithLabelValues(endpoint, outcome).Inc()
	if seconds > 0 {
		providerLatency.WithLabelValues(endpoint).Observe(seconds)
	}
}

func IncCache(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func SetProviderHealth(score int) {
	providerHealth.Set(float64(score))
}

func IncJob(jobType, status string) {
	jobTransitions.WithLabelValues(jobType, status).Inc()
}

func ObserveJobDuration(jobType string, seconds float64) {
	jobDuration.WithLabelValues(jobType).Observe(seconds)
}

// AddSyncItems records created/updated/skipped counts for one entity.
func AddSyncItems(entity string, created, updated, skipped int) {
	if created > 0 {
		syncItems.WithLabelValues(entity, "created").Add(float64(created))
	}
	if updated > 0 {
		syncItems.WithLabelValues(entity, "updated").Add(float64(updated))
	}
	if skipped > 0 {
		syncItems.WithLabelValues(entity, "skipped").Add(float64(skipped))
	}
}

func SetQueueDepth(state string, n int64) {
	queueDepth.WithLabelValues(state).Set(float64(n))
}

func IncStalledJob(jobType string) {
	stalledJobs.WithLabelValues(jobType).Inc()
}

func IncBotCommand(command, outcome string) {
	botCommands.WithLabelValues(command, outcome).Inc()
}
