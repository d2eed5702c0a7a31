package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/mailings"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/telegram"
)

// outboxBotAPI is the part of the Telegram client outbox delivery needs.
type outboxBotAPI interface {
	SendMessage(token string, chatID int64, text string, markup any) (tgbotapi.Message, error)
	SendPhoto(token string, chatID int64, photoURL, caption string) (tgbotapi.Message, error)
}

type tokenLookup interface {
	GetByID(ctx context.Context, q database.Querier, id string) (*bots.Bot, error)
}

type sentRecorder interface {
	CreateSentMessage(ctx context.Context, q database.Querier, postID string, chatID int64, messageID int) (*mailings.SentMessage, error)
}

type chatDeactivator interface {
	Deactivate(ctx context.Context, q database.Querier, botID string, chatID int64) error
}

// telegramOutboxSender delivers outbox jobs with the token of the job's
// bot. It opens its own tenant connection since Send has no querier.
type telegramOutboxSender struct {
	pool  *database.Pool
	api   outboxBotAPI
	bots  tokenLookup
	sent  sentRecorder
	chats chatDeactivator
	// run defaults to database.WithTenantConnection on pool.
	run func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error
}

func newTelegramOutboxSender(pool *database.Pool, api outboxBotAPI, botStore tokenLookup, sent sentRecorder, chats chatDeactivator) *telegramOutboxSender {
	return &telegramOutboxSender{
		pool:  pool,
		api:   api,
		bots:  botStore,
		sent:  sent,
		chats: chats,
		run: func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error {
			return database.WithTenantConnection(ctx, pool, tenantID, fn)
		},
	}
}

func (s *telegramOutboxSender) Send(ctx context.Context, job outbox.Job) error {
	msg, err := job.Decode()
	if err != nil {
		return outbox.NewPermanentError(fmt.Errorf("decoding outbox payload: %w", err))
	}
	if strings.TrimSpace(msg.Text) == "" && msg.PhotoURL == "" {
		return outbox.NewPermanentError(errors.New("outbox payload is empty"))
	}

	return s.run(ctx, job.TenantID.String(), func(ctx context.Context, q database.Querier) error {
		bot, err := s.bots.GetByID(ctx, q, job.BotID)
		if err != nil {
			if errors.Is(err, bots.ErrBotNotFound) {
				return outbox.NewPermanentError(err)
			}
			return fmt.Errorf("resolving bot token: %w", err)
		}

		var sent tgbotapi.Message
		if msg.PhotoURL != "" {
			sent, err = s.api.SendPhoto(bot.Token, job.ChatID, msg.PhotoURL, msg.Text)
		} else {
			sent, err = s.api.SendMessage(bot.Token, job.ChatID, msg.Text, nil)
		}
		if err != nil {
			if telegram.IsBlocked(err) {
				if dErr := s.chats.Deactivate(ctx, q, bot.ID, job.ChatID); dErr != nil {
					return fmt.Errorf("deactivating chat after %v: %w", err, dErr)
				}
			}
			return classifyTelegramError(err)
		}

		if job.Kind == outbox.KindMailing && job.PostID != nil {
			if _, err := s.sent.CreateSentMessage(ctx, q, *job.PostID, job.ChatID, sent.MessageID); err != nil {
				return outbox.NewPermanentError(fmt.Errorf("recording sent message: %w", err))
			}
		}
		return nil
	})
}

// classifyTelegramError maps Bot API failures to outbox retry semantics.
func classifyTelegramError(err error) error {
	if telegram.IsPermanent(err) {
		return outbox.NewPermanentError(err)
	}
	if d := telegram.RetryAfter(err); d > 0 {
		return outbox.NewRetryAfterError(err, d)
	}
	return err
}
