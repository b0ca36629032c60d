package notify

import (
	"errors"
	"fmt"
	"strings"

	"sportsync/internal/config"
	"sportsync/internal/domain"
	"sportsync/internal/events"
	"sportsync/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Alerter forwards job failures and stalls to operator chats.
type Alerter struct {
	sender  domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewAlerter(sender domain.TelegramSender, cfg config.TelegramConfig, logger *zerolog.Logger) *Alerter {
	return &Alerter{
		sender:  sender,
		chatIDs: cfg.ChatIDs,
		logger:  logging.Component(logger, "notify"),
	}
}

// AlertEvents are the job events that reach operators.
var AlertEvents = []string{
	events.EventJobFailed,
	events.EventJobStalled,
	events.EventJobForceReleased,
}

// Subscribe registers the alerter on bus.
func (a *Alerter) Subscribe(bus *events.EventBus) {
	for _, name := range AlertEvents {
		bus.Subscribe(name, a.Handle)
	}
}

// Handle sends one alert per configured chat. Errors of individual chats
// are joined.
func (a *Alerter) Handle(ev *events.Event) error {
	if len(a.chatIDs) == 0 {
		return nil
	}
	var p events.JobEventPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	text := FormatAlert(ev.Type, p)

	var errs []error
	for _, chatID := range a.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.sender.Send(msg); err != nil {
			a.logger.Error().Err(err).Int64("chat_id", chatID).Str("job_id", p.JobID).Msg("failed to send alert")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// FormatAlert renders a Markdown alert for a job event.
func FormatAlert(eventType string, p events.JobEventPayload) string {
	var title string
	switch eventType {
	case events.EventJobFailed:
		title = "❌ *Sync job failed*"
	case events.EventJobStalled:
		title = "⏳ *Sync job stalled*"
	case events.EventJobForceReleased:
		title = "⚠️ *Sync job force released*"
	default:
		title = "ℹ️ *Sync job " + esc(eventType) + "*"
	}

	var b strings.Builder
	b.WriteString(title)
	fmt.Fprintf(&b, "\nType: `%s`", p.Type)
	fmt.Fprintf(&b, "\nJob: `%s`", p.JobID)
	if p.TriggeredBy != "" {
		fmt.Fprintf(&b, "\nTriggered by: %s", esc(p.TriggeredBy))
	}
	if p.RetryCount > 0 {
		fmt.Fprintf(&b, "\nRetries: %d", p.RetryCount)
	}
	if p.Error != "" {
		fmt.Fprintf(&b, "\nError: %s", esc(p.Error))
	}
	if !p.At.IsZero() {
		fmt.Fprintf(&b, "\nAt: %s", p.At.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return b.String()
}
