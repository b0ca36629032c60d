package bot

import (
	"fmt"
	"strings"
	"time"

	"sportsync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const timeLayout = "2006-01-02 15:04"

func jobLine(job *models.SyncJob) string {
	return fmt.Sprintf("%s %s %s %d%% %s",
		job.ID, job.Type, job.Status, job.Progress, job.CreatedAt.UTC().Format(timeLayout))
}

func formatJob(job *models.SyncJob) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s\n", job.ID)
	fmt.Fprintf(&sb, "Type: %s\nStatus: %s\nPriority: %s\n", job.Type, job.Status, job.Priority)
	fmt.Fprintf(&sb, "Progress: %d%% (%d/%d)\n", job.Progress, job.ProcessedItems, job.TotalItems)
	fmt.Fprintf(&sb, "Attempts: %d/%d\n", job.RetryCount, job.MaxRetries)
	fmt.Fprintf(&sb, "Triggered by: %s\n", job.TriggeredBy)
	fmt.Fprintf(&sb, "Created: %s", job.CreatedAt.UTC().Format(timeLayout))
	if job.StartedAt != nil {
		fmt.Fprintf(&sb, "\nStarted: %s", job.StartedAt.UTC().Format(timeLayout))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(&sb, "\nFinished: %s", job.CompletedAt.UTC().Format(timeLayout))
		if job.StartedAt != nil {
			fmt.Fprintf(&sb, " (%s)", job.CompletedAt.Sub(*job.StartedAt).Round(time.Second))
		}
	}
	if job.ErrorMessage != nil {
		fmt.Fprintf(&sb, "\nError: %s", *job.ErrorMessage)
	}
	return sb.String()
}

// jobKeyboard offers the one transition that applies to the job's status.
func jobKeyboard(job *models.SyncJob) *tgbotapi.InlineKeyboardMarkup {
	var button tgbotapi.InlineKeyboardButton
	switch job.Status {
	case models.JobPending:
		button = tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancel:"+job.ID)
	case models.JobProcessing:
		button = tgbotapi.NewInlineKeyboardButtonData("Force release", "release:"+job.ID)
	case models.JobFailed, models.JobCancelled:
		button = tgbotapi.NewInlineKeyboardButtonData("Retry", "retry:"+job.ID)
	default:
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(button))
	return &kb
}
