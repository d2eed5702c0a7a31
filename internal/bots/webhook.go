package bots

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramAPI is the subset of the Bot API used to manage webhooks.
type TelegramAPI interface {
	SetWebhook(token, url string) error
	DeleteWebhook(token string) error
	WebhookInfo(token string) (tgbotapi.WebhookInfo, error)
	GetMe(token string) (tgbotapi.User, error)
}

// Webhooks registers bot webhooks at https://{site}/telegram/api/{slug}/.
type Webhooks struct {
	api    TelegramAPI
	urlFor func(slug string) string
	logger *slog.Logger
}

func NewWebhooks(api TelegramAPI, urlFor func(slug string) string, logger *slog.Logger) *Webhooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhooks{api: api, urlFor: urlFor, logger: logger}
}

// Register points the bot's webhook at this service and reports whether
// Telegram accepted it. Failures are logged, not returned.
func (w *Webhooks) Register(b *Bot) bool {
	url := w.urlFor(b.Slug)
	if err := w.api.SetWebhook(b.Token, url); err != nil {
		w.logger.Warn("setting webhook failed", "bot_id", b.ID, "url", url, "error", err)
		return false
	}
	w.logger.Info("webhook set", "bot_id", b.ID, "url", url)
	return true
}

// Unregister removes the bot's webhook.
func (w *Webhooks) Unregister(b *Bot) error {
	if err := w.api.DeleteWebhook(b.Token); err != nil {
		w.logger.Warn("deleting webhook failed", "bot_id", b.ID, "error", err)
		return err
	}
	return nil
}

func (w *Webhooks) Info(b *Bot) (tgbotapi.WebhookInfo, error) {
	return w.api.WebhookInfo(b.Token)
}

func (w *Webhooks) Me(b *Bot) (tgbotapi.User, error) {
	return w.api.GetMe(b.Token)
}
