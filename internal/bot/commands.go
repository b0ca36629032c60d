package bot

import (
	"context"
	"fmt"
	"strings"

	"sportsync/internal/jobs"
	"sportsync/internal/metrics"
	"sportsync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const recentJobsLimit = 10

const helpText = `Commands:
/status - queue depth and job counts
/jobs [type|status] - recent jobs
/job <id> - job details
/run <type> [low|normal|high] - enqueue a job with default params
/cancel <id> - cancel a pending job
/release <id> - force release a pending or processing job
/retry <id> - retry a failed or cancelled job`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	command := msg.Command()

	var text string
	var keyboard *tgbotapi.InlineKeyboardMarkup
	var err error

	switch command {
	case "start", "help":
		text = helpText
	case "status":
		text, err = b.statusText(ctx)
	case "jobs":
		text, err = b.jobsText(ctx, args)
	case "job":
		if len(args) != 1 {
			text = "Usage: /job <id>"
			break
		}
		var job *models.SyncJob
		if job, err = b.jobs.GetJob(ctx, args[0]); err == nil {
			text, keyboard = formatJob(job), jobKeyboard(job)
		}
	case "run":
		text, err = b.runJob(ctx, args, triggeredBy(msg.From))
	case "cancel", "release", "retry":
		if len(args) != 1 {
			text = fmt.Sprintf("Usage: /%s <id>", command)
			break
		}
		text, err = b.applyAction(ctx, command, args[0], triggeredBy(msg.From))
	default:
		text = "Unknown command. Try /help."
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		zerolog.Ctx(ctx).Error().Err(err).Str("command", command).Msg("bot command failed")
		text, keyboard = errorText(err), nil
	}
	metrics.IncBotCommand(command, outcome)
	b.replyWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) statusText(ctx context.Context) (string, error) {
	counts, err := b.jobs.QueueCounts(ctx)
	if err != nil {
		return "", err
	}
	stats, err := b.jobs.Stats(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Queue: %d waiting, %d delayed, %d active\n", counts.Waiting, counts.Delayed, counts.Active)
	fmt.Fprintf(&sb, "Jobs: %d total", stats.Total)
	for _, status := range models.JobStatuses {
		if n := stats.ByStatus[status]; n > 0 {
			fmt.Fprintf(&sb, "\n  %s: %d", status, n)
		}
	}
	return sb.String(), nil
}

// jobsText lists the latest jobs. A single argument filters by type or
// status, whichever it names.
func (b *Bot) jobsText(ctx context.Context, args []string) (string, error) {
	filter := models.JobFilter{Limit: recentJobsLimit}
	if len(args) > 0 {
		arg := args[0]
		switch {
		case models.JobType(arg).Valid():
			filter.Type = models.JobType(arg)
		case isJobStatus(arg):
			filter.Status = models.JobStatus(arg)
		default:
			return fmt.Sprintf("%q is neither a job type nor a status.", arg), nil
		}
	}

	list, total, err := b.jobs.ListJobs(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No jobs.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Latest %d of %d:", len(list), total)
	for i := range list {
		sb.WriteString("\n")
		sb.WriteString(jobLine(&list[i]))
	}
	return sb.String(), nil
}

func (b *Bot) runJob(ctx context.Context, args []string, origin string) (string, error) {
	if len(args) == 0 || len(args) > 2 {
		return "Usage: /run <type> [low|normal|high]", nil
	}
	jobType, err := models.ParseJobType(args[0])
	if err != nil {
		return "", err
	}
	params, err := models.DefaultParams(jobType)
	if err != nil {
		return "", err
	}
	priority := models.PriorityNormal
	if len(args) == 2 {
		priority = models.ParsePriority(args[1])
	}

	job, created, err := b.jobs.CreateJob(ctx, jobs.CreateRequest{
		Params:      params,
		Priority:    priority,
		TriggeredBy: origin,
	})
	if err != nil {
		return "", err
	}
	if !created {
		return fmt.Sprintf("A %s job is already active: %s (%s)", job.Type, job.ID, job.Status), nil
	}
	return fmt.Sprintf("Queued %s job %s", job.Type, job.ID), nil
}

// applyAction runs cancel, release or retry against one job and describes
// the outcome.
func (b *Bot) applyAction(ctx context.Context, action, id, origin string) (string, error) {
	switch action {
	case "cancel", "release":
		apply := b.jobs.CancelJob
		if action == "release" {
			apply = b.jobs.ForceReleaseJob
		}
		ok, err := apply(ctx, id)
		if err != nil {
			return "", err
		}
		if !ok {
			job, err := b.jobs.GetJob(ctx, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Job %s is %s, nothing to %s.", id, job.Status, action), nil
		}
		if action == "cancel" {
			return fmt.Sprintf("Job %s cancelled.", id), nil
		}
		return fmt.Sprintf("Job %s released.", id), nil
	case "retry":
		job, created, err := b.jobs.RetryJob(ctx, id, origin)
		if err != nil {
			return "", err
		}
		if !created {
			return fmt.Sprintf("A %s job is already active: %s (%s)", job.Type, job.ID, job.Status), nil
		}
		return fmt.Sprintf("Retry queued as job %s", job.ID), nil
	}
	return "", fmt.Errorf("unknown action %q", action)
}

func triggeredBy(from *tgbotapi.User) string {
	if from == nil {
		return models.TriggeredByTelegram
	}
	if from.UserName != "" {
		return models.TriggeredByTelegram + ":" + from.UserName
	}
	return fmt.Sprintf("%s:%d", models.TriggeredByTelegram, from.ID)
}

func isJobStatus(s string) bool {
	for _, status := range models.JobStatuses {
		if string(status) == s {
			return true
		}
	}
	return false
}
