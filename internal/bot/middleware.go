package bot

import (
	"errors"

	"sportsync/internal/jobs"
	"sportsync/internal/models"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// errorText turns queue errors into something an operator can act on.
func errorText(err error) string {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return "Job not found."
	case errors.Is(err, jobs.ErrInvalidTransition):
		return "Only failed or cancelled jobs can be retried."
	case errors.Is(err, jobs.ErrRetryLimit):
		return "Retry limit reached for this job."
	case errors.Is(err, models.ErrUnknownJobType):
		return "Unknown job type."
	case errors.Is(err, jobs.ErrEngineClosed):
		return "Queue is shutting down."
	default:
		return "Internal error, see logs."
	}
}
