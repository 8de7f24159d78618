package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/rf-history/internal/ai"
	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/processor"
	"github.com/camuig/rf-history/internal/report"
	"github.com/camuig/rf-history/internal/storage"
)

const (
	requestTimeout = 30 * time.Second
	maxUploadSize  = 10 << 20
	topGrids       = 10
	reviewGrids    = 5
	recentLogs     = 3
)

// API is the subset of tgbotapi.BotAPI the bot works with.
type API interface {
	Sender
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type StatementProcessor interface {
	Process(ctx context.Context, ftpUserID, src string) (*processor.Result, error)
}

type Advisor interface {
	Comment(ctx context.Context, req *ai.ReviewRequest) (*ai.Review, error)
}

type Bot struct {
	api       API
	notifier  *Notifier
	repo      *storage.Repository
	reports   *report.Service
	processor StatementProcessor
	advisor   Advisor
	metrics   *metrics.Metrics
	logger    *logger.Logger
	params    analyzer.Params
	client    *http.Client
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewBot builds a bot around api. advisor may be nil when AI commentary is
// turned off.
func NewBot(
	api API,
	repo *storage.Repository,
	reports *report.Service,
	proc StatementProcessor,
	advisor Advisor,
	m *metrics.Metrics,
	cfg *config.Config,
	log *logger.Logger,
) *Bot {
	return &Bot{
		api:       api,
		notifier:  NewNotifier(api, log),
		repo:      repo,
		reports:   reports,
		processor: proc,
		advisor:   advisor,
		metrics:   m,
		logger:    log,
		params:    cfg.GridParams(),
		client:    &http.Client{Timeout: requestTimeout},
		now:       time.Now,
	}
}

// Notifier returns the notifier sharing the bot's connection.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// Run polls for updates until ctx is cancelled and waits for in-flight
// handlers before returning.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram bot started")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate serves one incoming message.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bot handler panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if msg.Document != nil {
		b.metrics.BotCommands.WithLabelValues("upload").Inc()
		b.handleDocument(ctx, msg)
		return
	}
	if !msg.IsCommand() {
		b.reply(chatID, helpText)
		return
	}

	cmd := msg.Command()
	b.logger.Debug("bot command", "command", cmd, "user_id", msg.From.ID)

	switch cmd {
	case "start":
		b.metrics.BotCommands.WithLabelValues(cmd).Inc()
		b.handleStart(msg)
	case "help":
		b.metrics.BotCommands.WithLabelValues(cmd).Inc()
		b.reply(chatID, helpText)
	case "stat":
		b.metrics.BotCommands.WithLabelValues(cmd).Inc()
		b.handleStat(msg)
	case "summary", "week", "weekprev", "month", "monthprev":
		b.metrics.BotCommands.WithLabelValues(cmd).Inc()
		kind, _ := analyzer.ParseWindowKind(cmd)
		b.handleSummary(ctx, msg, kind)
	case "grids":
		b.metrics.BotCommands.WithLabelValues(cmd).Inc()
		b.handleGrids(ctx, msg)
	default:
		b.metrics.BotCommands.WithLabelValues("unknown").Inc()
		b.reply(chatID, "Не знаю такой команды.\n\n"+helpText)
	}
}

const helpText = `Я анализирую историю сеточной торговли по выпискам RoboForex.

Пришлите файл statement.htm или выложите его на FTP, затем используйте команды:
/stat - какой период уже загружен
/summary - отчёт за всё время
/week, /weekprev - текущая и прошлая неделя
/month, /monthprev - текущий и прошлый месяц
/grids - сетки с самой глубокой просадкой`

func (b *Bot) reply(chatID int64, text string) {
	b.notifier.Send(chatID, text)
}

// account looks up the caller's account and explains to them when there is none.
func (b *Bot) account(msg *tgbotapi.Message) (*storage.Account, bool) {
	acc, err := b.repo.AccountByTelegramUser(msg.From.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Ваш Telegram (id %d) пока не привязан к торговому счёту. Передайте этот id администратору.", msg.From.ID))
		return nil, false
	case err != nil:
		b.logger.Error("find account", "user_id", msg.From.ID, "error", err)
		b.reply(msg.Chat.ID, "⚠️ Внутренняя ошибка, попробуйте позже.")
		return nil, false
	}
	return acc, true
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	acc, err := b.repo.AccountByTelegramUser(msg.From.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Error("find account", "user_id", msg.From.ID, "error", err)
		}
		b.reply(msg.Chat.ID, fmt.Sprintf("%s\n\nВаш Telegram id: %d. Передайте его администратору, чтобы привязать счёт.",
			helpText, msg.From.ID))
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("%s\n\nСчёт: *%s*", helpText, escape(acc.AccountNumber)))
}

func (b *Bot) handleStat(msg *tgbotapi.Message) {
	acc, ok := b.account(msg)
	if !ok {
		return
	}
	span, err := b.repo.OrderSpan(acc.FTPUserID)
	if err != nil {
		b.logger.Error("order span", "ftp_user", acc.FTPUserID, "error", err)
		b.reply(msg.Chat.ID, "⚠️ Не удалось прочитать историю.")
		return
	}
	logs, err := b.repo.RecentStatementLogs(acc.FTPUserID, recentLogs)
	if err != nil {
		b.logger.Warn("recent statement logs", "ftp_user", acc.FTPUserID, "error", err)
	}
	b.reply(msg.Chat.ID, RenderSpan(span, logs, b.now()))
}

func (b *Bot) build(ctx context.Context, msg *tgbotapi.Message, kind analyzer.WindowKind) (*report.Result, bool) {
	acc, ok := b.account(msg)
	if !ok {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := b.reports.Build(ctx, acc.FTPUserID, kind)
	switch {
	case errors.Is(err, report.ErrNoData):
		b.reply(msg.Chat.ID, "История ещё не загружена. Пришлите выписку statement.htm.")
		return nil, false
	case err != nil:
		b.logger.Error("build report", "ftp_user", acc.FTPUserID, "window", kind, "error", err)
		b.reply(msg.Chat.ID, "⚠️ Не удалось построить отчёт: "+escape(err.Error()))
		return nil, false
	}
	return res, true
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message, kind analyzer.WindowKind) {
	res, ok := b.build(ctx, msg, kind)
	if !ok {
		return
	}
	for _, text := range RenderSummary(res.Summary, b.params.MaxOrders) {
		b.reply(msg.Chat.ID, text)
	}

	if b.advisor == nil || res.Summary.OrderCount == 0 {
		return
	}
	review, err := b.advisor.Comment(ctx, &ai.ReviewRequest{
		Summary: res.Summary,
		Grids:   report.TopGrids(res.Grids, reviewGrids),
		Params:  b.params,
	})
	if err != nil {
		b.logger.Warn("ai review", "ftp_user", res.FTPUserID, "error", err)
		return
	}
	b.reply(msg.Chat.ID, RenderReview(review))
}

func (b *Bot) handleGrids(ctx context.Context, msg *tgbotapi.Message) {
	res, ok := b.build(ctx, msg, analyzer.WindowAll)
	if !ok {
		return
	}
	b.reply(msg.Chat.ID, RenderGrids(report.TopGrids(res.Grids, topGrids), b.params.MaxOrders))
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext != ".htm" && ext != ".html" {
		b.reply(msg.Chat.ID, "⚠️ Принимаю только выписки RoboForex в формате HTML (statement.htm).")
		return
	}
	acc, ok := b.account(msg)
	if !ok {
		return
	}
	b.reply(msg.Chat.ID, "Спасибо, файл получил, напишу как обработаю.")

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "rf-upload-")
	if err != nil {
		b.logger.Error("create upload dir", "error", err)
		b.notifier.NotifyStatement(msg.Chat.ID, nil, err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(doc.FileName))
	if err := b.download(ctx, doc.FileID, path); err != nil {
		b.logger.Error("download statement", "ftp_user", acc.FTPUserID, "file", doc.FileName, "error", err)
		b.notifier.NotifyStatement(msg.Chat.ID, nil, err)
		return
	}

	res, err := b.processor.Process(ctx, acc.FTPUserID, path)
	if err != nil {
		b.logger.Warn("uploaded statement", "ftp_user", acc.FTPUserID, "file", doc.FileName, "error", err)
	}
	b.notifier.NotifyStatement(msg.Chat.ID, res, err)
}

func (b *Bot) download(ctx context.Context, fileID, path string) error {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(resp.Body, maxUploadSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	if n > maxUploadSize {
		return fmt.Errorf("file is larger than %d bytes", maxUploadSize)
	}
	return nil
}
