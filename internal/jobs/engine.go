package jobs

import (
	"context"
	"time"

	"sportsync/internal/models"
)

// WorkItem is what the queue engine carries. ID is the persisted job id.
type WorkItem struct {
	ID         string         `json:"id"`
	Type       models.JobType `json:"type"`
	Priority   int            `json:"priority"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Engine moves work item ids from producers to the worker pool. The job
// record in storage stays the source of truth; an engine only orders ids.
type Engine interface {
	// Enqueue makes the item visible to Dequeue after delay.
	Enqueue(ctx context.Context, item WorkItem, delay time.Duration) error
	// Dequeue blocks until an item is ready, ctx is done or the engine's
	// poll interval passes. It returns nil, nil on an idle poll.
	Dequeue(ctx context.Context) (*WorkItem, error)
	// Remove drops a waiting or delayed item. Reports whether it was queued.
	Remove(ctx context.Context, id string) (bool, error)
	// Depth reports waiting and delayed item counts.
	Depth(ctx context.Context) (waiting, delayed int64, err error)
	Close() error
}
