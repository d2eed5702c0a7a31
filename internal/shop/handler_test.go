package shop_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/keyboards"
	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/database/dbtest"
	"github.com/shopfront-hq/shopfront/internal/reference"
	"github.com/shopfront-hq/shopfront/internal/shop"
	"github.com/shopfront-hq/shopfront/internal/subscribers"
	"github.com/shopfront-hq/shopfront/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "hook-secret"
	customerChat  = int64(501)
)

func setupTestDB(t *testing.T) (*database.Pool, func()) {
	t.Helper()
	return dbtest.Start(t)
}

type apiCall struct {
	method    string
	messageID int
	text      string
	markup    *tgbotapi.InlineKeyboardMarkup
}

// fakeBotAPI records every call and hands out increasing message ids.
type fakeBotAPI struct {
	mu     sync.Mutex
	nextID int
	calls  []apiCall
}

func (f *fakeBotAPI) record(c apiCall) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.messageID == 0 {
		f.nextID++
		c.messageID = f.nextID
	}
	f.calls = append(f.calls, c)
	return c.messageID
}

func (f *fakeBotAPI) SendMessage(_ string, _ int64, text string, markup any) (tgbotapi.Message, error) {
	c := apiCall{method: "send", text: text}
	if m, ok := markup.(tgbotapi.InlineKeyboardMarkup); ok {
		c.markup = &m
	}
	return tgbotapi.Message{MessageID: f.record(c)}, nil
}

func (f *fakeBotAPI) EditMessage(_ string, _ int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	f.record(apiCall{method: "edit", messageID: messageID, text: text, markup: markup})
	return tgbotapi.Message{MessageID: messageID}, nil
}

func (f *fakeBotAPI) EditReplyMarkup(_ string, _ int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error {
	f.record(apiCall{method: "markup", messageID: messageID, markup: &markup})
	return nil
}

func (f *fakeBotAPI) SendPhoto(_ string, _ int64, photoURL, caption string) (tgbotapi.Message, error) {
	return tgbotapi.Message{MessageID: f.record(apiCall{method: "photo", text: caption})}, nil
}

func (f *fakeBotAPI) EditPhoto(_ string, _ int64, messageID int, _, caption string) (tgbotapi.Message, error) {
	f.record(apiCall{method: "edit_photo", messageID: messageID, text: caption})
	return tgbotapi.Message{MessageID: messageID}, nil
}

func (f *fakeBotAPI) AnswerCallback(_, _, text string, _ bool) error {
	f.record(apiCall{method: "answer", messageID: -1, text: text})
	return nil
}

func (f *fakeBotAPI) snapshot() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func (f *fakeBotAPI) last() apiCall {
	calls := f.snapshot()
	return calls[len(calls)-1]
}

// button returns the callback key of the most recently rendered button
// with the given label.
func (f *fakeBotAPI) button(t *testing.T, label string) (string, int) {
	t.Helper()
	calls := f.snapshot()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].markup == nil {
			continue
		}
		for _, row := range calls[i].markup.InlineKeyboard {
			for _, b := range row {
				if b.Text == label && b.CallbackData != nil {
					return *b.CallbackData, calls[i].messageID
				}
			}
		}
	}
	t.Fatalf("no button %q was rendered", label)
	return "", 0
}

type recordingLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *recordingLogger) Log(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingLogger) Close() error { return nil }

func (l *recordingLogger) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}

type shopFixture struct {
	handler  *shop.Handler
	api      *fakeBotAPI
	auditLog *recordingLogger
	pool     *database.Pool
	tenantID string
	bot      *bots.Bot
	updateID int
}

func newShopFixture(t *testing.T, pool *database.Pool) *shopFixture {
	t.Helper()
	ctx := context.Background()

	refs := reference.NewStore()
	country, err := refs.CreateCountry(ctx, pool, reference.Country{Name: "Україна", ISO2: "UA"})
	require.NoError(t, err)
	delivery, err := refs.CreateDeliveryType(ctx, pool, reference.DeliveryType{Name: "Нова пошта", CountryID: &country.ID, IsActive: true})
	require.NoError(t, err)
	payment, err := refs.CreatePaymentType(ctx, pool, reference.PaymentType{Name: "Накладений платіж", Slug: "cod"})
	require.NoError(t, err)

	var tenantID string
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ('Kyiv Coffee', 'kyiv-coffee') RETURNING id`).Scan(&tenantID))

	var bot *bots.Bot
	require.NoError(t, database.WithTenantTx(ctx, pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var err error
		bot, err = bots.NewStore().Create(ctx, q, bots.Input{
			Name:             "Coffee",
			Token:            "1:a",
			TelegramOperator: "barista",
			TermsOfAgreement: true,
			CountryIDs:       []string{country.ID},
			DeliveryTypeIDs:  []string{delivery.ID},
			PaymentTypeIDs:   []string{payment.ID},
		}, "")
		require.NoError(t, err)

		_, err = catalog.NewStore().CreateProduct(ctx, q, bot.ID, catalog.ProductInput{
			Name: "Espresso", Article: "ESP-1", Price: "45.50", Amount: 5,
		})
		return err
	}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := &fakeBotAPI{}
	auditLog := &recordingLogger{}
	botStore := bots.NewStore()
	dispatcher := shop.NewDispatcher(api, keyboards.NewRegistry(rdb, time.Hour), botStore,
		subscribers.NewStore(), catalog.NewStore(), orders.NewStore(), auditLog)

	return &shopFixture{
		handler: shop.NewHandler(pool, telegram.NewVerifier(webhookSecret), shop.NewDeduper(rdb, time.Hour),
			botStore, dispatcher, auditLog),
		api:      api,
		auditLog: auditLog,
		pool:     pool,
		tenantID: tenantID,
		bot:      bot,
	}
}

func (f *shopFixture) post(t *testing.T, botSlug, body string, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telegram/api/"+botSlug+"/", strings.NewReader(body))
	req.SetPathValue("slug", botSlug)
	if secret != "" {
		req.Header.Set(telegram.SecretHeader, secret)
	}
	w := httptest.NewRecorder()
	f.handler.HandleWebhook(w, req)
	return w
}

func (f *shopFixture) sendText(t *testing.T, text string) {
	t.Helper()
	f.updateID++
	body := fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":0,`+
		`"from":{"id":%d,"is_bot":false,"first_name":"Olena","username":"olena"},`+
		`"chat":{"id":%d,"type":"private","first_name":"Olena"},"text":%q}}`,
		f.updateID, f.updateID, customerChat, customerChat, text)
	w := f.post(t, f.bot.Slug, body, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code)
}

func (f *shopFixture) press(t *testing.T, label string) {
	t.Helper()
	key, messageID := f.api.button(t, label)
	f.updateID++
	body := fmt.Sprintf(`{"update_id":%d,"callback_query":{"id":"cb-%d","data":%q,`+
		`"from":{"id":%d,"is_bot":false,"first_name":"Olena","username":"olena"},`+
		`"message":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"}}}}`,
		f.updateID, f.updateID, key, customerChat, messageID, customerChat)
	w := f.post(t, f.bot.Slug, body, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleWebhook_Rejections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	f := newShopFixture(t, pool)

	w := f.post(t, f.bot.Slug, `{"update_id":1}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.post(t, f.bot.Slug, `{"update_id":1}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, []string{audit.ActionWebhookRejected, audit.ActionWebhookRejected}, f.auditLog.actions())

	w = f.post(t, "no-such-bot", `{"update_id":1}`, webhookSecret)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.post(t, f.bot.Slug, `{not json`, webhookSecret)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.api.snapshot())
}

func TestHandleWebhook_StartIsHandledOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	f := newShopFixture(t, pool)

	f.sendText(t, "/start")
	calls := f.api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "send", calls[0].method)
	assert.Equal(t, "Вас вітає магазин Coffee", calls[0].text)

	// Telegram redelivers the same update.
	f.updateID--
	f.sendText(t, "/start")
	assert.Len(t, f.api.snapshot(), 1)

	var count int
	require.NoError(t, database.WithTenantConnection(context.Background(), pool, f.tenantID, func(ctx context.Context, q database.Querier) error {
		return q.QueryRow(ctx, `SELECT count(*) FROM subscribers WHERE chat_id = $1`, customerChat).Scan(&count)
	}))
	assert.Equal(t, 1, count)
}

func TestHandleWebhook_CatalogToSubmittedOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	f := newShopFixture(t, pool)

	f.sendText(t, "/start")
	f.sendText(t, keyboards.LabelCatalog)
	calls := f.api.snapshot()
	require.Len(t, calls, 4)
	assert.Equal(t, "photo", calls[1].method)
	assert.Contains(t, calls[1].text, "<b>Назва: Espresso</b>")
	assert.Equal(t, "markup", calls[2].method)
	assert.Equal(t, calls[1].messageID, calls[2].messageID)
	assert.Equal(t, "Відображено 1 з 1", calls[3].text)

	f.press(t, "➕")
	assert.Equal(t, "edit_photo", f.api.snapshot()[4].method)
	_, _ = f.api.button(t, "2 шт.")

	f.press(t, "Придбати 💸")
	assert.Equal(t, "answer", f.api.last().method)
	assert.Equal(t, "Товар додано до кошика!", f.api.last().text)

	f.sendText(t, keyboards.LabelBasket)
	basket := f.api.snapshot()
	assert.Contains(t, basket[len(basket)-2].text, "<i><u>Espresso</u></i> x 2 (45.50x2=91.00)")

	f.press(t, "Створити замовлення 🛒")
	f.press(t, "Україна")
	assert.Equal(t, "Оберіть спосіб доставки", f.api.snapshot()[len(f.api.snapshot())-2].text)
	f.press(t, "Нова пошта")
	f.press(t, "Накладений платіж")
	summary := f.api.snapshot()
	assert.Contains(t, summary[len(summary)-2].text, "<b>Країна доставки</b>: Україна")

	f.press(t, "Підтвердити ✅")
	last := f.api.last()
	assert.Equal(t, "edit", last.method)
	assert.True(t, strings.HasPrefix(last.text, "Замовлення створене."))
	require.NotNil(t, last.markup)
	assert.Empty(t, last.markup.InlineKeyboard)

	var status string
	var price int64
	require.NoError(t, database.WithTenantConnection(context.Background(), pool, f.tenantID, func(ctx context.Context, q database.Querier) error {
		return q.QueryRow(ctx, `SELECT status, price_cents FROM orders`).Scan(&status, &price)
	}))
	assert.Equal(t, string(orders.StatusNew), status)
	assert.Equal(t, int64(9100), price)
	assert.Contains(t, f.auditLog.actions(), audit.ActionOrderSubmitted)

	f.sendText(t, keyboards.LabelOrders)
	f.press(t, "Відмінити замовлення номер 1")
	assert.Contains(t, f.auditLog.actions(), audit.ActionOrderCanceled)
	assert.Contains(t, f.api.last().text, "Кількість закритих: 1")
}
