package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

type delayedItem struct {
	item    WorkItem
	readyAt time.Time
}

// MemoryEngine is a process-local engine used when redis is not configured
// and in tests. Items are lost on restart; Queue.Recover re-enqueues pending
// jobs from storage.
type MemoryEngine struct {
	mu           sync.Mutex
	waiting      []WorkItem
	delayed      []delayedItem
	wake         chan struct{} // closed and replaced to wake every idle Dequeue
	pollInterval time.Duration
	now          func() time.Time
	closed       bool
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		wake:         make(chan struct{}),
		pollInterval: time.Second,
		now:          time.Now,
	}
}

func (e *MemoryEngine) Enqueue(_ context.Context, item WorkItem, delay time.Duration) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if delay > 0 {
		e.delayed = append(e.delayed, delayedItem{item: item, readyAt: e.now().Add(delay)})
	} else {
		e.push(item)
	}
	e.broadcast()
	e.mu.Unlock()
	return nil
}

// broadcast wakes all waiting consumers. Callers hold mu.
func (e *MemoryEngine) broadcast() {
	close(e.wake)
	e.wake = make(chan struct{})
}

// push keeps waiting ordered by priority, FIFO within a priority.
func (e *MemoryEngine) push(item WorkItem) {
	i := sort.Search(len(e.waiting), func(i int) bool {
		return e.waiting[i].Priority < item.Priority
	})
	e.waiting = append(e.waiting, WorkItem{})
	copy(e.waiting[i+1:], e.waiting[i:])
	e.waiting[i] = item
}

func (e *MemoryEngine) promote() time.Duration {
	now := e.now()
	next := e.pollInterval
	kept := e.delayed[:0]
	for _, d := range e.delayed {
		if !d.readyAt.After(now) {
			e.push(d.item)
			continue
		}
		if wait := d.readyAt.Sub(now); wait < next {
			next = wait
		}
		kept = append(kept, d)
	}
	e.delayed = kept
	return next
}

func (e *MemoryEngine) Dequeue(ctx context.Context) (*WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	wait := e.promote()
	if len(e.waiting) > 0 {
		item := e.waiting[0]
		e.waiting = e.waiting[1:]
		e.mu.Unlock()
		return &item, nil
	}
	wake := e.wake
	e.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wake:
	case <-timer.C:
	}
	return nil, nil
}

func (e *MemoryEngine) Remove(_ context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, it := range e.waiting {
		if it.ID == id {
			e.waiting = append(e.waiting[:i], e.waiting[i+1:]...)
			return true, nil
		}
	}
	for i, d := range e.delayed {
		if d.item.ID == id {
			e.delayed = append(e.delayed[:i], e.delayed[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (e *MemoryEngine) Depth(context.Context) (int64, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.waiting)), int64(len(e.delayed)), nil
}

func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.waiting = nil
	e.delayed = nil
	e.broadcast()
	return nil
}
