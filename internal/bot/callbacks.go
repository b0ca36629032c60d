package bot

import (
	"context"
	"strings"

	"sportsync/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Callback data is "<action>:<job id>".
func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// answer right away so the client stops its spinner
	if _, err := b.tgService.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to answer callback")
	}

	action, id, ok := strings.Cut(callback.Data, ":")
	if !ok || id == "" {
		return
	}
	switch action {
	case "cancel", "release", "retry":
	default:
		return
	}

	text, err := b.applyAction(ctx, action, id, triggeredBy(callback.From))
	outcome := "ok"
	if err != nil {
		outcome = "error"
		zerolog.Ctx(ctx).Error().Err(err).Str("action", action).Str("job_id", id).Msg("bot callback failed")
		text = errorText(err)
	}
	metrics.IncBotCommand(action, outcome)
	b.reply(callback.Message.Chat.ID, text)
}
