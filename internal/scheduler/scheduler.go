package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/jobs"
	"sportsync/internal/logging"
	"sportsync/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const taskTimeout = 5 * time.Minute

// JobCreator is the queue surface the scheduler triggers.
type JobCreator interface {
	CreateJob(ctx context.Context, req jobs.CreateRequest) (*models.SyncJob, bool, error)
	CleanupOldJobs(ctx context.Context, days int) (int64, error)
}

type Backuper interface {
	Run(ctx context.Context) error
}

// LogPruner trims provider request logs during cleanup.
type LogPruner interface {
	DeleteRequestLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler fires sync jobs on cron specs. Overlapping runs are left to the
// queue's one-active-job-per-type rule.
type Scheduler struct {
	cron          *cron.Cron
	creator       JobCreator
	backup        Backuper
	pruner        LogPruner
	retentionDays int
	logger        *zerolog.Logger
	tasks         map[string]func()
}

// New registers a task for every non-empty spec. backup may be nil.
func New(creator JobCreator, backup Backuper, cfg config.SchedulerConfig, retentionDays int, logger *zerolog.Logger) (*Scheduler, error) {
	log := logging.Component(logger, "scheduler")
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		)),
		creator:       creator,
		backup:        backup,
		retentionDays: retentionDays,
		logger:        log,
		tasks:         make(map[string]func()),
	}

	triggers := map[string]models.JobParams{
		"leagues":       models.LeagueParams{},
		"teams":         models.TeamParams{},
		"fixtures":      models.FixtureParams{},
		"odds_upcoming": models.OddsUpcomingParams{},
		"odds_live":     models.OddsLiveParams{},
	}
	for name, spec := range cfg.Specs() {
		if spec == "" {
			continue
		}
		var task func()
		switch name {
		case "cleanup":
			task = s.cleanup
		case "backup":
			if backup == nil {
				continue
			}
			task = s.runBackup
		default:
			params, ok := triggers[name]
			if !ok {
				continue
			}
			task = s.trigger(params)
		}
		if _, err := s.cron.AddFunc(spec, task); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
		s.tasks[name] = task
		s.logger.Info().Str("task", name).Str("spec", spec).Msg("scheduled")
	}
	return s, nil
}

// PruneRequestLogs makes the cleanup task also drop request logs older
// than the job retention.
func (s *Scheduler) PruneRequestLogs(p LogPruner) {
	s.pruner = p
}

// Tasks lists the registered task names.
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow fires a registered task synchronously.
func (s *Scheduler) RunNow(name string) bool {
	task, ok := s.tasks[name]
	if ok {
		task()
	}
	return ok
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) trigger(params models.JobParams) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()

		job, created, err := s.creator.CreateJob(ctx, jobs.CreateRequest{
			Params:      params,
			Priority:    models.PriorityNormal,
			TriggeredBy: models.TriggeredByScheduler,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("type", string(params.JobType())).Msg("scheduled job not created")
			return
		}
		if !created {
			s.logger.Debug().Str("type", string(job.Type)).Str("job_id", job.ID).Msg("previous run still active")
			return
		}
		s.logger.Info().Str("type", string(job.Type)).Str("job_id", job.ID).Msg("scheduled job created")
	}
}

func (s *Scheduler) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if _, err := s.creator.CleanupOldJobs(ctx, s.retentionDays); err != nil {
		s.logger.Error().Err(err).Msg("scheduled cleanup failed")
	}
	if s.pruner == nil || s.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.pruner.DeleteRequestLogsOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("request log cleanup failed")
		return
	}
	s.logger.Info().Int64("deleted", n).Msg("request logs pruned")
}

func (s *Scheduler) runBackup() {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if err := s.backup.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled backup failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l *zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
