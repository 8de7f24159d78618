package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/rf-history/internal/ai"
	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/processor"
	"github.com/camuig/rf-history/internal/report"
	"github.com/camuig/rf-history/internal/storage"
)

const statementHTML = `<html><body><b>RoboMarkets Ltd</b>
<table>
<tr><td><b>Account: 12345</b></td><td><b>Name: Test</b></td></tr>
<tr><td>Ticket</td><td>Open Time</td><td>Type</td><td>Size</td><td>Item</td><td>Price</td><td>S / L</td><td>T / P</td><td>Close Time</td><td>Price</td><td>Commission</td><td>Taxes</td><td>Swap</td><td>Profit</td></tr>
<tr><td>1</td><td>2024.03.04 08:00:00</td><td>balance</td><td colspan=10>Deposit</td><td>100 000.00</td></tr>
<tr><td>2</td><td>2024.03.04 10:00:00</td><td>buy</td><td>0.10</td><td>xauusd</td><td>2000.00</td><td>0</td><td>0</td><td>2024.03.05 12:00:00</td><td>2004.00</td><td>0</td><td>0</td><td>0</td><td>1 100.00</td></tr>
<tr><td>3</td><td>2024.03.04 11:00:00</td><td>buy</td><td>0.17</td><td>xauusd</td><td>1998.00</td><td>0</td><td>0</td><td>2024.03.05 12:00:00</td><td>2004.00</td><td>0</td><td>0</td><td>0</td><td>1 020.00</td></tr>
<tr><td></td></tr>
</table></body></html>`

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	fileURL string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no file")
	}
	return f.fileURL, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []string
	for _, m := range f.sent {
		res = append(res, m.Text)
	}
	return res
}

func (f *fakeAPI) joined() string {
	return strings.Join(f.texts(), "\n---\n")
}

type fakeAdvisor struct {
	req *ai.ReviewRequest
}

func (f *fakeAdvisor) Comment(_ context.Context, req *ai.ReviewRequest) (*ai.Review, error) {
	f.req = req
	return &ai.Review{RiskLevel: "high", Comment: "Сетки слишком глубокие", Recommendations: []string{"Снизить лот"}}, nil
}

type fixture struct {
	bot     *Bot
	api     *fakeAPI
	repo    *storage.Repository
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, advisor Advisor) *fixture {
	t.Helper()
	root := t.TempDir()
	db, err := storage.NewDatabase(filepath.Join(root, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := storage.NewRepository(db)

	cfg := &config.Config{
		Statements: config.StatementsConfig{ProcessingDir: filepath.Join(root, "processing"), Timezone: "UTC"},
		Grid: config.GridConfig{
			StepPips: 180, PipSize: 0.01, MaxOrders: 20, LotBase: 1000,
			Plateau: analyzer.DefaultMultiplier, Markers: analyzer.DefaultMarkers(),
		},
	}
	log := logger.Discard()
	m := metrics.New()

	engine, err := analyzer.NewEngine(cfg.GridParams())
	require.NoError(t, err)
	reports := report.NewService(repo, engine, &analyzer.PatternClassifier{Deposit: analyzer.DefaultDepositPattern}, m, log)
	proc, err := processor.NewProcessor(repo, m, cfg, log)
	require.NoError(t, err)

	api := &fakeAPI{}
	return &fixture{
		bot:     NewBot(api, repo, reports, proc, advisor, m, cfg, log),
		api:     api,
		repo:    repo,
		metrics: m,
	}
}

func command(userID int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, f.repo.SaveAccount(&storage.Account{
		TelegramUserID: 42, FTPUserID: "ftp1", AccountNumber: "12345", Active: true,
	}))
	at := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }
	_, err := f.repo.SaveOrders("ftp1", "a.htm", []analyzer.Order{
		{ID: 1, Side: analyzer.SideBalance, OpenTime: at(4, 8), CloseTime: at(4, 8), Profit: 1000, Comment: "Deposit"},
		{ID: 2, Side: analyzer.SideBuy, Symbol: "XAUUSD", OpenTime: at(4, 10), CloseTime: at(5, 12), Qty: 0.1, OpenPrice: 2000, Profit: 5, Comment: "Start BUY"},
		{ID: 3, Side: analyzer.SideBuy, Symbol: "XAUUSD", OpenTime: at(4, 11), CloseTime: at(5, 12), Qty: 0.165, OpenPrice: 1998, Profit: 6, Comment: "BUY 2"},
	})
	require.NoError(t, err)
}

func TestStartWithoutAccount(t *testing.T) {
	f := newFixture(t, nil)

	f.bot.HandleUpdate(context.Background(), command(7, "/start"))

	require.Len(t, f.api.sent, 1)
	assert.Contains(t, f.api.sent[0].Text, "Ваш Telegram id: 7")
	assert.Equal(t, tgbotapi.ModeMarkdown, f.api.sent[0].ParseMode)
	assert.Equal(t, int64(7), f.api.sent[0].ChatID)
}

func TestCommandsRequireAccount(t *testing.T) {
	f := newFixture(t, nil)

	for _, cmd := range []string{"/stat", "/summary", "/grids"} {
		f.bot.HandleUpdate(context.Background(), command(7, cmd))
	}
	for _, text := range f.api.texts() {
		assert.Contains(t, text, "не привязан")
	}
	assert.Len(t, f.api.sent, 3)
}

func TestStat(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.bot.now = func() time.Time { return time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC) }

	f.bot.HandleUpdate(context.Background(), command(42, "/stat"))

	require.Len(t, f.api.sent, 1)
	assert.Contains(t, f.api.sent[0].Text, "2024-03-04 - 2024-03-04")
	assert.Contains(t, f.api.sent[0].Text, "Записей: 3")
	assert.Contains(t, f.api.sent[0].Text, "выберите команду")
	assert.NotContains(t, f.api.sent[0].Text, "устарели")
}

func TestStatStaleHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.bot.now = func() time.Time { return time.Date(2024, 3, 7, 1, 0, 0, 0, time.UTC) }

	f.bot.HandleUpdate(context.Background(), command(42, "/stat"))

	require.Len(t, f.api.sent, 1)
	assert.Contains(t, f.api.sent[0].Text, "Данные устарели: последней записи 3 дн.")
	assert.Contains(t, f.api.sent[0].Text, "свежую выписку")
}

func TestDaysSince(t *testing.T) {
	last := time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, daysSince(last, time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 1, daysSince(last, time.Date(2024, 3, 5, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 31, daysSince(last, time.Date(2024, 4, 4, 12, 0, 0, 0, time.UTC)))
}

func TestSummaryWithReview(t *testing.T) {
	advisor := &fakeAdvisor{}
	f := newFixture(t, advisor)
	f.seed(t)

	f.bot.HandleUpdate(context.Background(), command(42, "/summary"))

	out := f.api.joined()
	assert.Contains(t, out, "Период: 2024-03-04 - 2024-03-04")
	assert.Contains(t, out, "*Прибыль: $11.00*")
	assert.Contains(t, out, "Ордеров: 2")
	assert.Contains(t, out, "Сеток однонаправленных: 1")
	assert.Contains(t, out, "Комментарий AI")
	assert.Contains(t, out, "Снизить лот")

	require.NotNil(t, advisor.req)
	assert.Len(t, advisor.req.Grids, 1)
	assert.Equal(t, 20, advisor.req.Params.MaxOrders)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BotCommands.WithLabelValues("summary")))
}

func TestCashFlowOnlyWindowSkipsReview(t *testing.T) {
	advisor := &fakeAdvisor{}
	f := newFixture(t, advisor)
	f.seed(t)
	// A later deposit moves the anchor into a week without trades.
	_, err := f.repo.SaveOrders("ftp1", "b.htm", []analyzer.Order{{
		ID: 4, Side: analyzer.SideBalance, Comment: "Deposit", Profit: 10,
		OpenTime: time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC), CloseTime: time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	f.bot.HandleUpdate(context.Background(), command(42, "/week"))

	out := f.api.joined()
	assert.Contains(t, out, "Период: 2024-03-18 - 2024-03-24")
	assert.Contains(t, out, "Пополнения: $10.00")
	assert.Contains(t, out, "Ордеров: 0")
	assert.Contains(t, out, "Сеток, открытых в этом периоде, нет.")
	assert.NotContains(t, out, "Комментарий AI")
	assert.Nil(t, advisor.req)
}

func TestWeekOfEarlierGridGetsReview(t *testing.T) {
	advisor := &fakeAdvisor{}
	f := newFixture(t, advisor)
	f.seed(t)
	// The grid opened on Monday 03-04 keeps adding orders the following week.
	_, err := f.repo.SaveOrders("ftp1", "b.htm", []analyzer.Order{{
		ID: 5, Side: analyzer.SideBuy, Symbol: "XAUUSD", Qty: 0.27, OpenPrice: 1996, Profit: 9, Comment: "BUY 3",
		OpenTime: time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC), CloseTime: time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	f.bot.HandleUpdate(context.Background(), command(42, "/week"))

	out := f.api.joined()
	assert.Contains(t, out, "*Прибыль: $9.00*")
	assert.Contains(t, out, "Ордеров: 1")
	assert.Contains(t, out, "Сеток, открытых в этом периоде, нет.")
	assert.NotContains(t, out, "Сеток однонаправленных")
	assert.Contains(t, out, "Комментарий AI")
	require.NotNil(t, advisor.req)
	assert.Equal(t, 1, advisor.req.Summary.OrderCount)
}

func TestRenderSummaryWithoutGridStart(t *testing.T) {
	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	s := analyzer.Summary{
		Start: start, Finish: start.AddDate(0, 0, 6),
		NoGrids: true, OrderCount: 2, WinCount: 2, Profit: 16,
		WinRate: analyzer.Defined(1), TradingDays: 2, CalendarDays: 2,
	}

	msgs := RenderSummary(s, 20)

	require.Len(t, msgs, 6)
	assert.Contains(t, msgs[0], "Период: 2024-03-11 - 2024-03-17")
	assert.Contains(t, msgs[1], "*Прибыль: $16.00*")
	assert.Contains(t, msgs[4], "Ордеров: 2")
	assert.Contains(t, msgs[4], "Win Rate: 100.0%")
	assert.Equal(t, "Сеток, открытых в этом периоде, нет.", msgs[5])
}

func TestRenderSummaryWithoutOrders(t *testing.T) {
	msgs := RenderSummary(analyzer.Summary{NoOrders: true, NoGrids: true}, 20)

	require.Len(t, msgs, 1)
	assert.NotContains(t, msgs[0], "Период")
	assert.NotContains(t, msgs[0], "0001-01-01")
	assert.Contains(t, msgs[0], "сделок и движений средств нет")

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	bounded := RenderSummary(analyzer.Summary{Start: start, Finish: start.AddDate(0, 0, 28), NoOrders: true, NoGrids: true}, 20)
	require.Len(t, bounded, 1)
	assert.Contains(t, bounded[0], "Период: 2024-02-01 - 2024-02-29")
}

func TestGrids(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	f.bot.HandleUpdate(context.Background(), command(42, "/grids"))

	require.Len(t, f.api.sent, 1)
	assert.Contains(t, f.api.sent[0].Text, "1. 2024-03-04 10:00 BUY, ордеров: 2")
}

func TestNoDataAndUnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.repo.SaveAccount(&storage.Account{TelegramUserID: 42, FTPUserID: "ftp1", AccountNumber: "12345", Active: true}))

	f.bot.HandleUpdate(context.Background(), command(42, "/month"))
	f.bot.HandleUpdate(context.Background(), command(42, "/nope"))

	texts := f.api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "История ещё не загружена")
	assert.Contains(t, texts[1], "Не знаю такой команды")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BotCommands.WithLabelValues("unknown")))
}

func TestUploadStatement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(statementHTML))
	}))
	defer srv.Close()

	f := newFixture(t, nil)
	f.api.fileURL = srv.URL
	require.NoError(t, f.repo.SaveAccount(&storage.Account{TelegramUserID: 42, FTPUserID: "ftp1", AccountNumber: "12345", Active: true}))

	upload := tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42},
		Chat:     &tgbotapi.Chat{ID: 42},
		Document: &tgbotapi.Document{FileID: "abc", FileName: "statement.htm"},
	}}
	f.bot.HandleUpdate(context.Background(), upload)

	texts := f.api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "файл получил")
	assert.Contains(t, texts[1], "Новых записей: 3")

	orders, err := f.repo.LoadOrders("ftp1")
	require.NoError(t, err)
	assert.Len(t, orders, 3)
}

func TestUploadRejectsOtherFiles(t *testing.T) {
	f := newFixture(t, nil)

	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42},
		Chat:     &tgbotapi.Chat{ID: 42},
		Document: &tgbotapi.Document{FileID: "abc", FileName: "history.xlsx"},
	}})

	require.Len(t, f.api.sent, 1)
	assert.Contains(t, f.api.sent[0].Text, "только выписки")
}

func TestNotifierDisabled(t *testing.T) {
	n := NewNotifier(nil, logger.Discard())
	n.NotifyStatement(1, nil, errors.New("boom"))
}

func TestRenderStatement(t *testing.T) {
	ok := RenderStatement(&processor.Result{Total: 4, New: 2}, nil)
	assert.Contains(t, ok, "Новых записей: 2")

	rejected := RenderStatement(nil, processor.ErrAccountNotAssigned)
	assert.Contains(t, rejected, "не привязан")

	schema := RenderStatement(nil, &analyzer.SchemaError{Missing: []analyzer.Field{analyzer.FieldProfit}})
	assert.Contains(t, schema, "Не удалось разобрать")
}
