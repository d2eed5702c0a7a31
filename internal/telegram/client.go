// Package telegram wraps the Bot API calls the shop and the workers make.
// Every call is keyed by the bot token, so one Client serves all bots.
package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const ParseModeHTML = "HTML"

// Client talks to the Bot API on behalf of any number of bots.
type Client struct {
	endpoint      string
	webhookSecret string
	httpClient    *http.Client

	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI
}

// Config holds Client settings. Endpoint uses the tgbotapi format
// "https://api.telegram.org/bot%s/%s".
type Config struct {
	Endpoint      string
	WebhookSecret string
	Timeout       time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		endpoint:      cfg.Endpoint,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		bots:          make(map[string]*tgbotapi.BotAPI),
	}
}

// api returns a cached BotAPI for token. It is built directly instead of
// through tgbotapi.NewBotAPI, which would call getMe on every new token.
func (c *Client) api(token string) *tgbotapi.BotAPI {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bot, ok := c.bots[token]; ok {
		return bot
	}
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: c.httpClient,
		Buffer: 100,
	}
	bot.SetAPIEndpoint(c.endpoint)
	c.bots[token] = bot
	return bot
}

// SendMessage sends an HTML text message. markup may be nil, an inline or a
// reply keyboard.
func (c *Client) SendMessage(token string, chatID int64, text string, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = ParseModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := c.api(token).Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("sendMessage: %w", err)
	}
	return sent, nil
}

// EditMessage replaces the text of a message. A nil markup removes the inline keyboard.
func (c *Client) EditMessage(token string, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = ParseModeHTML
	edit.ReplyMarkup = markup
	sent, err := c.api(token).Send(edit)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("editMessageText: %w", err)
	}
	return sent, nil
}

func (c *Client) EditReplyMarkup(token string, chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup)
	if _, err := c.api(token).Request(edit); err != nil {
		return fmt.Errorf("editMessageReplyMarkup: %w", err)
	}
	return nil
}

// SendPhoto sends a photo by URL with an HTML caption.
func (c *Client) SendPhoto(token string, chatID int64, photoURL, caption string) (tgbotapi.Message, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	photo.ParseMode = ParseModeHTML
	sent, err := c.api(token).Send(photo)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("sendPhoto: %w", err)
	}
	return sent, nil
}

// EditPhoto swaps the photo and caption of an existing photo message.
func (c *Client) EditPhoto(token string, chatID int64, messageID int, photoURL, caption string) (tgbotapi.Message, error) {
	media := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(photoURL))
	media.Caption = caption
	media.ParseMode = ParseModeHTML

	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID},
		Media:    media,
	}
	sent, err := c.api(token).Send(edit)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("editMessageMedia: %w", err)
	}
	return sent, nil
}

func (c *Client) AnswerCallback(token, callbackID, text string, showAlert bool) error {
	answer := tgbotapi.NewCallback(callbackID, text)
	answer.ShowAlert = showAlert
	if _, err := c.api(token).Request(answer); err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(token string, chatID int64, messageID int) error {
	if _, err := c.api(token).Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("deleteMessage: %w", err)
	}
	return nil
}

// SetWebhook points the bot at url. Telegram echoes the configured secret in
// the X-Telegram-Bot-Api-Secret-Token header of every update.
func (c *Client) SetWebhook(token, url string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", c.webhookSecret)
	if _, err := c.api(token).MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	return nil
}

func (c *Client) DeleteWebhook(token string) error {
	if _, err := c.api(token).Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}

func (c *Client) WebhookInfo(token string) (tgbotapi.WebhookInfo, error) {
	info, err := c.api(token).GetWebhookInfo()
	if err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("getWebhookInfo: %w", err)
	}
	return info, nil
}

func (c *Client) GetMe(token string) (tgbotapi.User, error) {
	me, err := c.api(token).GetMe()
	if err != nil {
		return tgbotapi.User{}, fmt.Errorf("getMe: %w", err)
	}
	return me, nil
}

// IsPermanent reports whether err is a Bot API rejection that will not
// succeed on retry: bad request (400), forbidden (403, bot blocked) or
// not found (404). Rate limits and transport errors are retryable.
func IsPermanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// IsBlocked reports whether the chat refused the bot (403), which is what
// Telegram answers once a subscriber blocks it.
func IsBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

// RetryAfter returns the flood-control delay Telegram asked for, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}
