package models

import (
	"fmt"
	"time"
)

// SyncResult is the uniform outcome of one entity sync run. Filtered counts
// upstream items outside the local scope (inactive leagues); they are not
// part of TotalFetched.
type SyncResult struct {
	Entity       string    `json:"entity"`
	TotalFetched int       `json:"total_fetched"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	Unchanged    int       `json:"unchanged"`
	Filtered     int       `json:"filtered,omitempty"`
	Errors       []string  `json:"errors"`
	CompletedAt  time.Time `json:"completed_at"`
}

func NewSyncResult(entity string) *SyncResult {
	return &SyncResult{Entity: entity, Errors: []string{}}
}

func (r *SyncResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *SyncResult) Finish() *SyncResult {
	r.CompletedAt = time.Now().UTC()
	return r
}

// Merge folds another result's counters and errors into r.
func (r *SyncResult) Merge(other *SyncResult) {
	if other == nil {
		return
	}
	r.TotalFetched += other.TotalFetched
	r.Created += other.Created
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Unchanged += other.Unchanged
	r.Filtered += other.Filtered
	for _, e := range other.Errors {
		if other.Entity != "" && other.Entity != r.Entity {
			r.Errors = append(r.Errors, other.Entity+": "+e)
			continue
		}
		r.Errors = append(r.Errors, e)
	}
}

func (r *SyncResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// FullSyncResult aggregates the steps of a composite run.
type FullSyncResult struct {
	Steps   []*SyncResult `json:"steps"`
	Total   *SyncResult   `json:"total"`
	Success bool          `json:"success"`
}

func NewFullSyncResult() *FullSyncResult {
	return &FullSyncResult{Total: NewSyncResult("full_sync")}
}

func (f *FullSyncResult) Add(step *SyncResult) {
	if step == nil {
		return
	}
	f.Steps = append(f.Steps, step)
	f.Total.Merge(step)
}

func (f *FullSyncResult) Finish() *FullSyncResult {
	f.Total.Finish()
	f.Success = !f.Total.HasErrors()
	return f
}
