package bot

import (
	"context"
	"sync"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/domain"
	"sportsync/internal/jobs"
	"sportsync/internal/logging"
	"sportsync/internal/models"

	mapset "github.com/deckarep/golang-set/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// JobService is the part of the job queue operators drive from chat.
type JobService interface {
	CreateJob(ctx context.Context, req jobs.CreateRequest) (*models.SyncJob, bool, error)
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]models.SyncJob, int, error)
	Stats(ctx context.Context) (*models.JobStats, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	ForceReleaseJob(ctx context.Context, id string) (bool, error)
	RetryJob(ctx context.Context, id string, triggeredBy string) (*models.SyncJob, bool, error)
	QueueCounts(ctx context.Context) (*models.QueueCounts, error)
}

// Bot answers operator commands in the configured chats. Messages from
// other chats are ignored.
type Bot struct {
	tgService domain.TelegramService
	jobs      JobService
	chats     mapset.Set[int64]
	cfg       config.TelegramConfig
	logger    *zerolog.Logger

	limiters sync.Map
}

func NewBot(tgService domain.TelegramService, jobService JobService, cfg config.TelegramConfig, logger *zerolog.Logger) *Bot {
	return &Bot{
		tgService: tgService,
		jobs:      jobService,
		chats:     mapset.NewSet[int64](cfg.ChatIDs...),
		cfg:       cfg,
		logger:    logging.Component(logger, "bot"),
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tgService.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chatID, userID := updateOrigin(update)
		if chatID == 0 {
			return
		}
		if !b.chats.Contains(chatID) {
			l.Debug().Int64("chat_id", chatID).Int64("user_id", userID).Msg("update from unknown chat ignored")
			return
		}
		if !b.allow(chatID) {
			l.Warn().Int64("chat_id", chatID).Msg("Rate limit exceeded")
			if update.Message != nil {
				b.reply(chatID, "Too many commands, slow down.")
			}
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		if update.Message != nil && update.Message.IsCommand() {
			b.handleCommand(updateCtx, update.Message)
		}
	})
}

func updateOrigin(update tgbotapi.Update) (chatID, userID int64) {
	switch {
	case update.Message != nil:
		chatID = update.Message.Chat.ID
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		if update.CallbackQuery.From != nil {
			userID = update.CallbackQuery.From.ID
		}
	}
	return chatID, userID
}

func (b *Bot) allow(chatID int64) bool {
	if v, ok := b.limiters.Load(chatID); ok {
		return v.(*rate.Limiter).Allow()
	}
	l := rate.NewLimiter(rate.Limit(b.cfg.CommandRate), b.cfg.CommandBurst)
	v, _ := b.limiters.LoadOrStore(chatID, l)
	return v.(*rate.Limiter).Allow()
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}
