package models

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	DefaultProviderName = "api-football"
	DefaultAPIKeyHeader = "x-apisports-key"
	// APIKeyPlaceholder is substituted with the provider key in header templates.
	APIKeyPlaceholder = "{key}"
)

const SportFootball = "football"

const (
	DefaultFixturePastDays   = 7
	DefaultFixtureFutureDays = 14
	DefaultOddsUpcomingHours = 48
	MaxUpcomingOddsBatch     = 50
	MaxLiveOddsBatch         = 30
	DefaultJobRetentionDays  = 7
)

// Local match states.
const (
	MatchStatusScheduled = "scheduled"
	MatchStatusLive      = "live"
	MatchStatusFinished  = "finished"
	MatchStatusPostponed = "postponed"
	MatchStatusCancelled = "cancelled"
)

// Provider health accounting.
const (
	HealthScoreMax = 100
	HealthPenalty  = 5
	HealthRecovery = 1
)

const (
	// MaxLoggedBodyChars bounds the response body stored with a request log.
	MaxLoggedBodyChars = 20000
	LoggedPreviewChars = 1000
	RedactedValue      = "[REDACTED]"
)

const (
	TriggeredByScheduler = "scheduler"
	TriggeredByAPI       = "api"
	TriggeredByRetry     = "retry"
	TriggeredByTelegram  = "telegram"

	ForceReleasedMessage = "force released"
)

// Cache key prefixes.
const (
	CachePrefixAPI       = "api:"
	CachePrefixOddsBoard = "odds:board:"
)
