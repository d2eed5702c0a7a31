package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/mailings"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBotAPI struct {
	err      error
	texts    []string
	photos   []string
	nextID   int
	lastChat int64
}

func (s *stubBotAPI) SendMessage(_ string, chatID int64, text string, _ any) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.lastChat = chatID
	s.texts = append(s.texts, text)
	s.nextID++
	return tgbotapi.Message{MessageID: s.nextID}, nil
}

func (s *stubBotAPI) SendPhoto(_ string, chatID int64, photoURL, _ string) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.lastChat = chatID
	s.photos = append(s.photos, photoURL)
	s.nextID++
	return tgbotapi.Message{MessageID: s.nextID}, nil
}

type stubBots struct {
	bot *bots.Bot
}

func (s stubBots) GetByID(_ context.Context, _ database.Querier, _ string) (*bots.Bot, error) {
	if s.bot == nil {
		return nil, bots.ErrBotNotFound
	}
	return s.bot, nil
}

type sentCall struct {
	postID    string
	chatID    int64
	messageID int
}

type stubSent struct {
	calls []sentCall
}

func (s *stubSent) CreateSentMessage(_ context.Context, _ database.Querier, postID string, chatID int64, messageID int) (*mailings.SentMessage, error) {
	s.calls = append(s.calls, sentCall{postID: postID, chatID: chatID, messageID: messageID})
	return &mailings.SentMessage{}, nil
}

type stubChats struct {
	deactivated []int64
}

func (s *stubChats) Deactivate(_ context.Context, _ database.Querier, _ string, chatID int64) error {
	s.deactivated = append(s.deactivated, chatID)
	return nil
}

type senderFixture struct {
	sender  *telegramOutboxSender
	api     *stubBotAPI
	sent    *stubSent
	chats   *stubChats
	tenants []string
}

func newSenderFixture(bot *bots.Bot) *senderFixture {
	f := &senderFixture{api: &stubBotAPI{}, sent: &stubSent{}, chats: &stubChats{}}
	f.sender = &telegramOutboxSender{
		api:   f.api,
		bots:  stubBots{bot: bot},
		sent:  f.sent,
		chats: f.chats,
		run: func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error {
			f.tenants = append(f.tenants, tenantID)
			return fn(ctx, nil)
		},
	}
	return f
}

func newJob(t *testing.T, kind outbox.Kind, postID *string, msg outbox.Message) outbox.Job {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return outbox.Job{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		BotID:    "bot-1",
		Kind:     kind,
		ChatID:   501,
		PostID:   postID,
		Payload:  payload,
	}
}

func TestOutboxSender_MailingRecordsSentMessage(t *testing.T) {
	f := newSenderFixture(&bots.Bot{ID: "bot-1", Token: "1:a"})
	postID := "post-1"
	job := newJob(t, outbox.KindMailing, &postID, outbox.Message{Text: "Sale", PhotoURL: "https://cdn.example/p.jpg"})

	require.NoError(t, f.sender.Send(context.Background(), job))

	assert.Equal(t, []string{job.TenantID.String()}, f.tenants)
	assert.Equal(t, []string{"https://cdn.example/p.jpg"}, f.api.photos)
	assert.Empty(t, f.api.texts)
	require.Len(t, f.sent.calls, 1)
	assert.Equal(t, sentCall{postID: "post-1", chatID: 501, messageID: 1}, f.sent.calls[0])
}

func TestOutboxSender_OrderStatusSendsText(t *testing.T) {
	f := newSenderFixture(&bots.Bot{ID: "bot-1", Token: "1:a"})
	job := newJob(t, outbox.KindOrderStatus, nil, outbox.Message{Text: "Замовлення прийнято"})

	require.NoError(t, f.sender.Send(context.Background(), job))

	assert.Equal(t, []string{"Замовлення прийнято"}, f.api.texts)
	assert.Equal(t, int64(501), f.api.lastChat)
	assert.Empty(t, f.sent.calls)
}

func TestOutboxSender_Failures(t *testing.T) {
	bot := &bots.Bot{ID: "bot-1", Token: "1:a"}

	t.Run("empty payload is permanent", func(t *testing.T) {
		f := newSenderFixture(bot)
		err := f.sender.Send(context.Background(), newJob(t, outbox.KindOrderStatus, nil, outbox.Message{Text: "  "}))
		require.Error(t, err)
		assert.True(t, outbox.IsPermanentError(err))
		assert.Empty(t, f.tenants)
	})

	t.Run("deleted bot is permanent", func(t *testing.T) {
		f := newSenderFixture(nil)
		err := f.sender.Send(context.Background(), newJob(t, outbox.KindOrderStatus, nil, outbox.Message{Text: "hi"}))
		require.Error(t, err)
		assert.True(t, outbox.IsPermanentError(err))
		assert.ErrorIs(t, err, bots.ErrBotNotFound)
	})

	t.Run("blocked chat is deactivated", func(t *testing.T) {
		f := newSenderFixture(bot)
		f.api.err = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
		err := f.sender.Send(context.Background(), newJob(t, outbox.KindOrderStatus, nil, outbox.Message{Text: "hi"}))
		require.Error(t, err)
		assert.True(t, outbox.IsPermanentError(err))
		assert.Equal(t, []int64{501}, f.chats.deactivated)
	})

	t.Run("flood control carries retry hint", func(t *testing.T) {
		f := newSenderFixture(bot)
		f.api.err = &tgbotapi.Error{
			Code:               429,
			Message:            "Too Many Requests",
			ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 9},
		}
		err := f.sender.Send(context.Background(), newJob(t, outbox.KindOrderStatus, nil, outbox.Message{Text: "hi"}))
		require.Error(t, err)
		assert.False(t, outbox.IsPermanentError(err))
		hint, ok := outbox.RetryAfterHint(err)
		require.True(t, ok)
		assert.Equal(t, 9*time.Second, hint)
		assert.Empty(t, f.chats.deactivated)
	})

	t.Run("transport error is retryable", func(t *testing.T) {
		f := newSenderFixture(bot)
		f.api.err = errors.New("dial tcp: i/o timeout")
		err := f.sender.Send(context.Background(), newJob(t, outbox.KindOrderStatus, nil, outbox.Message{Text: "hi"}))
		require.Error(t, err)
		assert.False(t, outbox.IsPermanentError(err))
		_, ok := outbox.RetryAfterHint(err)
		assert.False(t, ok)
	})
}
