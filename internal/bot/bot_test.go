package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"sportsync/internal/config"
	"sportsync/internal/database"
	"sportsync/internal/domain"
	"sportsync/internal/jobs"
	"sportsync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorChat int64 = 1001

type mockTelegramService struct {
	domain.TelegramService
	updatesChan  chan tgbotapi.Update
	sentMessages []tgbotapi.MessageConfig
	requests     []tgbotapi.Chattable
	stopped      bool
}

func (m *mockTelegramService) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sentMessages = append(m.sentMessages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramService) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockTelegramService) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "sportsync_bot"}
}

func (m *mockTelegramService) StopReceivingUpdates() {
	m.stopped = true
}

func (m *mockTelegramService) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.sentMessages)
	return m.sentMessages[len(m.sentMessages)-1].Text
}

type testBot struct {
	*Bot
	tg    *mockTelegramService
	queue *jobs.Queue
}

func telegramConfig() config.TelegramConfig {
	return config.TelegramConfig{
		Enabled:      true,
		ChatIDs:      []int64{operatorChat},
		Commands:     true,
		CommandRate:  100,
		CommandBurst: 100,
	}
}

func newTestBot(t *testing.T, cfg config.TelegramConfig) *testBot {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "bot.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	queue := jobs.NewQueue(db, jobs.NewMemoryEngine(), nil, config.JobsConfig{
		Concurrency: 1,
		MaxRetries:  3,
	}, nil)
	tg := &mockTelegramService{updatesChan: make(chan tgbotapi.Update, 4)}
	return &testBot{Bot: NewBot(tg, queue, cfg, nil), tg: tg, queue: queue}
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	name := text
	if i := strings.IndexByte(text, ' '); i >= 0 {
		name = text[:i]
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42, UserName: "ops"},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 42, UserName: "ops"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func (tb *testBot) send(t *testing.T, text string) string {
	t.Helper()
	tb.processUpdate(context.Background(), commandUpdate(operatorChat, text))
	return tb.tg.lastText(t)
}

func (tb *testBot) createJob(t *testing.T, params models.JobParams) *models.SyncJob {
	t.Helper()
	job, created, err := tb.queue.CreateJob(context.Background(), jobs.CreateRequest{Params: params, TriggeredBy: models.TriggeredByAPI})
	require.NoError(t, err)
	require.True(t, created)
	return job
}

func TestBotStart(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	tb.tg.updatesChan <- commandUpdate(operatorChat, "/status")
	close(tb.tg.updatesChan)

	tb.Start(context.Background())

	require.Len(t, tb.tg.sentMessages, 1)
	assert.Equal(t, operatorChat, tb.tg.sentMessages[0].ChatID)
	assert.Contains(t, tb.tg.sentMessages[0].Text, "Queue: 0 waiting")
}

func TestBotStartStopsOnContext(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tb.Start(ctx)
	assert.True(t, tb.tg.stopped)
}

func TestIgnoresUnknownChat(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	tb.processUpdate(context.Background(), commandUpdate(777, "/run league"))
	tb.processUpdate(context.Background(), callbackUpdate(777, "cancel:x"))

	assert.Empty(t, tb.tg.sentMessages)
	assert.Empty(t, tb.tg.requests)
	_, total, err := tb.queue.ListJobs(context.Background(), models.JobFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRunCommand(t *testing.T) {
	tb := newTestBot(t, telegramConfig())

	text := tb.send(t, "/run league high")
	assert.Contains(t, text, "Queued league job")

	list, total, err := tb.queue.ListJobs(context.Background(), models.JobFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, models.PriorityHigh, list[0].Priority)
	assert.Equal(t, "telegram:ops", list[0].TriggeredBy)

	assert.Contains(t, tb.send(t, "/run league"), "already active")
	assert.Equal(t, "Unknown job type.", tb.send(t, "/run cricket"))
	assert.Contains(t, tb.send(t, "/run"), "Usage")
}

func TestJobsCommand(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	assert.Equal(t, "No jobs.", tb.send(t, "/jobs"))

	league := tb.createJob(t, models.LeagueParams{})
	tb.createJob(t, models.OddsLiveParams{})

	text := tb.send(t, "/jobs")
	assert.Contains(t, text, "Latest 2 of 2")

	text = tb.send(t, "/jobs league")
	assert.Contains(t, text, league.ID)
	assert.NotContains(t, text, "odds_live")

	assert.Contains(t, tb.send(t, "/jobs pending"), "Latest 2 of 2")
	assert.Contains(t, tb.send(t, "/jobs sideways"), "neither a job type nor a status")
}

func TestJobCommandOffersCancel(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	job := tb.createJob(t, models.FixtureParams{})

	text := tb.send(t, "/job "+job.ID)
	assert.Contains(t, text, "Status: pending")
	markup, ok := tb.tg.sentMessages[len(tb.tg.sentMessages)-1].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cancel:"+job.ID, *markup.InlineKeyboard[0][0].CallbackData)

	assert.Equal(t, "Job not found.", tb.send(t, "/job missing"))
}

func TestCancelAndRetryViaCallbacks(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	job := tb.createJob(t, models.TeamParams{})
	ctx := context.Background()

	tb.processUpdate(ctx, callbackUpdate(operatorChat, "cancel:"+job.ID))
	assert.Len(t, tb.tg.requests, 1)
	assert.Equal(t, "Job "+job.ID+" cancelled.", tb.tg.lastText(t))

	stored, err := tb.queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, stored.Status)

	tb.processUpdate(ctx, callbackUpdate(operatorChat, "retry:"+job.ID))
	assert.Contains(t, tb.tg.lastText(t), "Retry queued as job")

	list, _, err := tb.queue.ListJobs(ctx, models.JobFilter{Status: models.JobPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ParentJobID)
	assert.Equal(t, job.ID, *list[0].ParentJobID)

	// unknown actions are answered but otherwise ignored
	sent := len(tb.tg.sentMessages)
	tb.processUpdate(ctx, callbackUpdate(operatorChat, "delete:"+job.ID))
	assert.Len(t, tb.tg.sentMessages, sent)
}

func TestTransitionsThatDoNotApply(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	ctx := context.Background()
	pending := tb.createJob(t, models.OddsUpcomingParams{})
	running := tb.createJob(t, models.LeagueParams{})
	_, err := tb.queue.MarkAsProcessing(ctx, running.ID)
	require.NoError(t, err)

	assert.Equal(t, "Only failed or cancelled jobs can be retried.", tb.send(t, "/retry "+pending.ID))
	assert.Equal(t, "Only failed or cancelled jobs can be retried.", tb.send(t, "/retry "+running.ID))
	assert.Equal(t, "Job "+running.ID+" is processing, nothing to cancel.", tb.send(t, "/cancel "+running.ID))
	assert.Equal(t, "Usage: /cancel <id>", tb.send(t, "/cancel"))
	assert.Equal(t, "Unknown command. Try /help.", tb.send(t, "/frobnicate"))
}

func TestReleasePendingAndProcessing(t *testing.T) {
	tb := newTestBot(t, telegramConfig())
	ctx := context.Background()
	pending := tb.createJob(t, models.OddsUpcomingParams{})
	running := tb.createJob(t, models.LeagueParams{})
	_, err := tb.queue.MarkAsProcessing(ctx, running.ID)
	require.NoError(t, err)

	assert.Equal(t, "Job "+pending.ID+" released.", tb.send(t, "/release "+pending.ID))
	assert.Equal(t, "Job "+running.ID+" released.", tb.send(t, "/release "+running.ID))

	for _, id := range []string{pending.ID, running.ID} {
		stored, err := tb.queue.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobCancelled, stored.Status)
	}
	assert.Equal(t, "Job "+pending.ID+" is cancelled, nothing to release.", tb.send(t, "/release "+pending.ID))
}

func TestRateLimitPerChat(t *testing.T) {
	cfg := telegramConfig()
	cfg.CommandRate = 0.001
	cfg.CommandBurst = 1
	tb := newTestBot(t, cfg)

	assert.Contains(t, tb.send(t, "/help"), "/status")
	assert.Equal(t, "Too many commands, slow down.", tb.send(t, "/help"))
}

func TestPanicIsRecovered(t *testing.T) {
	tg := &mockTelegramService{}
	b := NewBot(tg, nil, telegramConfig(), nil)

	assert.NotPanics(t, func() {
		b.processUpdate(context.Background(), commandUpdate(operatorChat, "/status"))
	})
	assert.Empty(t, tg.sentMessages)
}

func TestConnectRequiresToken(t *testing.T) {
	_, err := Connect("")
	assert.Error(t, err)
}
