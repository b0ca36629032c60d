package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeLeague       JobType = "league"
	JobTypeTeam         JobType = "team"
	JobTypeFixture      JobType = "fixture"
	JobTypeOddsUpcoming JobType = "odds_upcoming"
	JobTypeOddsLive     JobType = "odds_live"
	JobTypeFullSync     JobType = "full_sync"
)

var JobTypes = []JobType{
	JobTypeLeague,
	JobTypeTeam,
	JobTypeFixture,
	JobTypeOddsUpcoming,
	JobTypeOddsLive,
	JobTypeFullSync,
}

func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

func ParseJobType(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, s)
	}
	return t, nil
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

var JobStatuses = []JobStatus{JobPending, JobProcessing, JobCompleted, JobFailed, JobCancelled}

// Active reports whether the job still occupies its type's single slot.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

type JobPriority string

const (
	PriorityLow    JobPriority = "low"
	PriorityNormal JobPriority = "normal"
	PriorityHigh   JobPriority = "high"
)

func ParsePriority(s string) JobPriority {
	switch JobPriority(s) {
	case PriorityLow, PriorityHigh:
		return JobPriority(s)
	default:
		return PriorityNormal
	}
}

// Rank orders priorities for the queue engines; higher runs first.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

type SyncJob struct {
	ID             string          `json:"id"`
	Type           JobType         `json:"type"`
	Status         JobStatus       `json:"status"`
	Priority       JobPriority     `json:"priority"`
	Params         json.RawMessage `json:"params,omitempty"`
	Progress       int             `json:"progress"`
	TotalItems     int             `json:"total_items"`
	ProcessedItems int             `json:"processed_items"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	ErrorStack     *string         `json:"error_stack,omitempty"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	TriggeredBy    string          `json:"triggered_by"`
	QueueJobID     string          `json:"queue_job_id"`
	ParentJobID    *string         `json:"parent_job_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// JobUpdate carries incremental progress. Nil fields are left untouched.
type JobUpdate struct {
	Progress       *int
	TotalItems     *int
	ProcessedItems *int
}

type JobFilter struct {
	Type   JobType
	Status JobStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type JobStats struct {
	Total    int               `json:"total"`
	ByStatus map[JobStatus]int `json:"by_status"`
	ByType   map[JobType]int   `json:"by_type"`
}

// QueueCounts is a snapshot of queue depth.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}
