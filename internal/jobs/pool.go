package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/events"
	"sportsync/internal/logging"
	"sportsync/internal/metrics"
	"sportsync/internal/models"
	"sportsync/internal/syncer"

	"github.com/rs/zerolog"
)

// Handler executes one job and returns its result payload.
type Handler interface {
	Handle(ctx context.Context, job *models.SyncJob, progress syncer.ProgressFunc) (any, error)
}

type runningJob struct {
	job      *models.SyncJob
	lastBeat time.Time
	stalled  bool
}

// Pool consumes work items with bounded concurrency. Each running job must
// report progress within the lock window or it is flagged as stalled.
type Pool struct {
	queue   *Queue
	handler Handler
	cfg     config.JobsConfig
	logger  *zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running map[string]*runningJob

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(queue *Queue, handler Handler, cfg config.JobsConfig, logger *zerolog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pool{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logging.Component(logger, "worker_pool"),
		now:     time.Now,
		running: make(map[string]*runningJob),
	}
}

// Start launches the workers and the stall monitor; it does not block.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func(n int) {
			defer p.wg.Done()
			p.work(ctx, n)
		}(i)
	}
	if p.cfg.StallCheckInterval > 0 && p.cfg.LockWindow > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.monitor(ctx)
		}()
	}
	p.logger.Info().Int("concurrency", p.cfg.Concurrency).Dur("lock_window", p.cfg.LockWindow).Msg("worker pool started")
}

// Stop cancels the workers and waits for running jobs to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

func (p *Pool) work(ctx context.Context, n int) {
	for {
		if ctx.Err() != nil {
			return
		}
		item, err := p.queue.engine.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrEngineClosed) {
				return
			}
			p.logger.Error().Err(err).Int("worker", n).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if item == nil {
			continue
		}
		p.process(ctx, item)
	}
}

func (p *Pool) process(ctx context.Context, item *WorkItem) {
	job, err := p.queue.MarkAsProcessing(ctx, item.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrJobNotFound) {
			p.logger.Debug().Err(err).Str("job_id", item.ID).Msg("work item dropped")
			return
		}
		p.logger.Error().Err(err).Str("job_id", item.ID).Msg("failed to start job")
		return
	}

	p.track(job)
	defer p.untrack(job.ID)

	result, stack, runErr := p.run(ctx, job)

	// Bookkeeping must land even when shutdown cancelled the run.
	bctx := context.WithoutCancel(ctx)
	if runErr != nil {
		err = p.queue.MarkAsFailed(bctx, job.ID, runErr, stack)
	} else {
		err = p.queue.MarkAsCompleted(bctx, job.ID, result)
	}
	if errors.Is(err, ErrInvalidTransition) {
		p.logger.Warn().Str("job_id", job.ID).Msg("job released while running, result discarded")
		return
	}
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to finalize job")
	}
}

func (p *Pool) run(ctx context.Context, job *models.SyncJob) (result any, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
			result = nil
		}
	}()
	result, err = p.handler.Handle(ctx, job, p.progress(ctx, job.ID))
	return result, stack, err
}

func (p *Pool) progress(ctx context.Context, id string) syncer.ProgressFunc {
	return func(processed, total int) {
		p.beat(id)
		u := models.JobUpdate{ProcessedItems: &processed, TotalItems: &total}
		if total > 0 {
			pct := processed * 100 / total
			u.Progress = &pct
		}
		if err := p.queue.UpdateJob(ctx, id, u); err != nil {
			p.logger.Debug().Err(err).Str("job_id", id).Msg("progress update failed")
		}
	}
}

func (p *Pool) track(job *models.SyncJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[job.ID] = &runningJob{job: job, lastBeat: p.now()}
}

func (p *Pool) untrack(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, id)
}

func (p *Pool) beat(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.running[id]; ok {
		r.lastBeat = p.now()
		r.stalled = false
	}
}

func (p *Pool) monitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.StallCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkStalled()
		}
	}
}

// checkStalled flags jobs silent for longer than the lock window. A job is
// reported once per silence; the operator recovers it with a force release.
func (p *Pool) checkStalled() []string {
	now := p.now()
	var stalled []*models.SyncJob

	p.mu.Lock()
	for _, r := range p.running {
		if r.stalled || now.Sub(r.lastBeat) <= p.cfg.LockWindow {
			continue
		}
		r.stalled = true
		stalled = append(stalled, r.job)
	}
	p.mu.Unlock()

	ids := make([]string, 0, len(stalled))
	for _, job := range stalled {
		ids = append(ids, job.ID)
		metrics.IncStalledJob(string(job.Type))
		p.logger.Warn().
			Str("job_id", job.ID).
			Str("type", string(job.Type)).
			Dur("lock_window", p.cfg.LockWindow).
			Msg("job stalled: no progress within lock window")
		p.queue.publish(events.EventJobStalled, job, "no progress within lock window", "")
	}
	return ids
}
