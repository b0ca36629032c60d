package jobs

import (
	"context"
	"errors"
	"fmt"

	"sportsync/internal/logging"
	"sportsync/internal/models"
	"sportsync/internal/syncer"

	"github.com/rs/zerolog"
)

// Runner is the set of entity syncs a job can dispatch to.
type Runner interface {
	SyncLeagues(ctx context.Context, p models.LeagueParams, progress syncer.ProgressFunc) (*models.SyncResult, error)
	SyncTeams(ctx context.Context, p models.TeamParams, progress syncer.ProgressFunc) (*models.SyncResult, error)
	SyncFixtures(ctx context.Context, p models.FixtureParams, progress syncer.ProgressFunc) (*models.SyncResult, error)
	SyncUpcomingOdds(ctx context.Context, p models.OddsUpcomingParams, progress syncer.ProgressFunc) (*models.SyncResult, error)
	SyncLiveOdds(ctx context.Context, progress syncer.ProgressFunc) (*models.SyncResult, error)
}

// Processor decodes a job's params and runs the matching sync.
type Processor struct {
	runner Runner
	logger *zerolog.Logger
}

func NewProcessor(runner Runner, logger *zerolog.Logger) *Processor {
	return &Processor{runner: runner, logger: logging.Component(logger, "job_processor")}
}

// Handle implements Handler.
func (p *Processor) Handle(ctx context.Context, job *models.SyncJob, progress syncer.ProgressFunc) (any, error) {
	params, err := models.DecodeParams(job.Type, job.Params)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, params, progress)
}

// Run executes params synchronously.
func (p *Processor) Run(ctx context.Context, params models.JobParams, progress syncer.ProgressFunc) (any, error) {
	switch v := params.(type) {
	case models.LeagueParams:
		return p.runner.SyncLeagues(ctx, v, progress)
	case models.TeamParams:
		return p.runner.SyncTeams(ctx, v, progress)
	case models.FixtureParams:
		return p.runner.SyncFixtures(ctx, v, progress)
	case models.OddsUpcomingParams:
		return p.runner.SyncUpcomingOdds(ctx, v, progress)
	case models.OddsLiveParams:
		return p.runner.SyncLiveOdds(ctx, progress)
	case models.FullSyncParams:
		return p.FullSync(ctx, v, progress)
	default:
		return nil, fmt.Errorf("%w: %T", models.ErrUnknownJobType, params)
	}
}

type fullSyncStep struct {
	entity string
	run    func(ctx context.Context, progress syncer.ProgressFunc) (*models.SyncResult, error)
}

// FullSync runs leagues, teams, fixtures and upcoming odds in order inside
// one job. A failing step is recorded and the next one still runs; the
// aggregate succeeds only without errors.
func (p *Processor) FullSync(ctx context.Context, params models.FullSyncParams, progress syncer.ProgressFunc) (*models.FullSyncResult, error) {
	steps := []fullSyncStep{
		{"leagues", func(ctx context.Context, pr syncer.ProgressFunc) (*models.SyncResult, error) {
			return p.runner.SyncLeagues(ctx, models.LeagueParams{Season: params.Season}, pr)
		}},
		{"teams", func(ctx context.Context, pr syncer.ProgressFunc) (*models.SyncResult, error) {
			return p.runner.SyncTeams(ctx, models.TeamParams{Season: params.Season}, pr)
		}},
		{"fixtures", func(ctx context.Context, pr syncer.ProgressFunc) (*models.SyncResult, error) {
			return p.runner.SyncFixtures(ctx, models.FixtureParams{}, pr)
		}},
		{"odds", func(ctx context.Context, pr syncer.ProgressFunc) (*models.SyncResult, error) {
			return p.runner.SyncUpcomingOdds(ctx, models.OddsUpcomingParams{Hours: params.Hours}, pr)
		}},
	}

	full := models.NewFullSyncResult()
	for i, step := range steps {
		stepProgress := scaledProgress(progress, i, len(steps))
		res, err := step.run(ctx, stepProgress)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			p.logger.Warn().Err(err).Str("step", step.entity).Msg("full sync step failed")
			res = models.NewSyncResult(step.entity)
			res.AddError("%v", err)
			res.Finish()
		}
		full.Add(res)
		if stepProgress != nil {
			stepProgress(1, 1)
		}
	}
	full.Finish()
	p.logger.Info().Bool("success", full.Success).Int("errors", len(full.Total.Errors)).Msg("full sync finished")
	return full, nil
}

// scaledProgress maps a step's own progress onto its slice of the whole run.
func scaledProgress(progress syncer.ProgressFunc, step, steps int) syncer.ProgressFunc {
	if progress == nil {
		return nil
	}
	const unit = 100
	return func(processed, total int) {
		done := 0
		if total > 0 {
			done = processed * unit / total
		}
		progress(step*unit+done, steps*unit)
	}
}
