package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/keyboards"
	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/subscribers"
)

// Dispatcher routes one update of a bot to the matching conversation step.
type Dispatcher struct {
	api         BotAPI
	keyboards   *keyboards.Registry
	bots        *bots.Store
	subscribers *subscribers.Store
	catalog     *catalog.Store
	orders      *orders.Store
	auditLog    audit.Logger
}

func NewDispatcher(
	api BotAPI,
	registry *keyboards.Registry,
	botStore *bots.Store,
	subscriberStore *subscribers.Store,
	catalogStore *catalog.Store,
	orderStore *orders.Store,
	auditLog audit.Logger,
) *Dispatcher {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Dispatcher{
		api:         api,
		keyboards:   registry,
		bots:        botStore,
		subscribers: subscriberStore,
		catalog:     catalogStore,
		orders:      orderStore,
		auditLog:    auditLog,
	}
}

// session is the state of one update being handled.
type session struct {
	ctx        context.Context
	q          database.Querier
	bot        *bots.Bot
	sub        *subscribers.Subscriber
	callbackID string
	// messageID is the message the pressed button belongs to.
	messageID int
}

// Dispatch handles a message or a callback query. Other update kinds are
// ignored. Telegram failures are logged; store failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, q database.Querier, bot *bots.Bot, upd *tgbotapi.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		return d.handleCallback(ctx, q, bot, upd.CallbackQuery)
	case upd.Message != nil:
		return d.handleMessage(ctx, q, bot, upd.Message)
	}
	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, q database.Querier, bot *bots.Bot, msg *tgbotapi.Message) error {
	if msg.Chat == nil {
		return nil
	}
	profile := subscribers.Profile{ChatID: msg.Chat.ID, Name: strings.TrimSpace(msg.Chat.FirstName + " " + msg.Chat.LastName), Username: msg.Chat.UserName}
	if msg.From != nil {
		profile = subscribers.ProfileFromUser(msg.From)
		profile.ChatID = msg.Chat.ID
	} else if profile.Username == "" {
		profile.Username = profile.Name
	}

	sub, err := d.subscribers.Upsert(ctx, q, bot.ID, bot.TelegramOperator, profile)
	if err != nil {
		return err
	}
	if sub.IsBanned() {
		return nil
	}

	s := &session{ctx: ctx, q: q, bot: bot, sub: sub}
	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "":
		return nil
	case text == "/start":
		return d.start(s)
	case strings.HasPrefix(text, "/"):
		command, _, _ := strings.Cut(text, " ")
		if command == commandComment {
			return d.comment(s, text)
		}
		return nil
	}

	switch keyboards.ActionForText(text) {
	case keyboards.ActionHome:
		return d.start(s)
	case keyboards.ActionHelp:
		return d.help(s)
	case keyboards.ActionCatalog:
		return d.showCatalog(s, cardRequest{amount: 1})
	case keyboards.ActionCategories:
		return d.showCategories(s)
	case keyboards.ActionOrders:
		return d.showOrders(s, 0)
	case keyboards.ActionBasket:
		return d.showBasket(s, 0)
	}
	return nil
}

func (d *Dispatcher) handleCallback(ctx context.Context, q database.Querier, bot *bots.Bot, cq *tgbotapi.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}
	profile := subscribers.ProfileFromUser(cq.From)
	if cq.Message != nil && cq.Message.Chat != nil {
		profile.ChatID = cq.Message.Chat.ID
	}
	sub, err := d.subscribers.Upsert(ctx, q, bot.ID, bot.TelegramOperator, profile)
	if err != nil {
		return err
	}
	if sub.IsBanned() {
		return nil
	}

	s := &session{ctx: ctx, q: q, bot: bot, sub: sub, callbackID: cq.ID}
	if cq.Message != nil {
		s.messageID = cq.Message.MessageID
	}

	cb, err := d.keyboards.Take(ctx, cq.Data)
	if err != nil {
		d.answer(s, textAnswerError)
		if errors.Is(err, keyboards.ErrCallbackNotFound) {
			return nil
		}
		return err
	}

	switch cb.Type {
	case keyboards.TypeNext, keyboards.TypePrev:
		if !cb.Products {
			return nil
		}
		return d.showCatalog(s, cardRequest{
			startFrom:     cb.StartFrom,
			cardMessageID: cb.MessageToEdit,
			pageMessageID: s.messageID,
			categoryID:    cb.CategoryID,
			amount:        1,
		})
	case keyboards.TypeCategory:
		return d.showCatalog(s, cardRequest{categoryID: cb.ID, amount: 1})
	case keyboards.TypeLike:
		return d.like(s, cb)
	case keyboards.TypeIncr, keyboards.TypeDecr:
		return d.showCatalog(s, cardRequest{
			startFrom:     cb.StartFrom,
			cardMessageID: cb.MessageToEdit,
			categoryID:    cb.CategoryID,
			productID:     cb.ID,
			amount:        cb.Amount,
			cardOnly:      true,
		})
	case keyboards.TypeAddCart:
		return d.addToBasket(s, cb.ID, cb.Amount)
	case keyboards.TypeClearCart:
		return d.clearBasket(s, cb.MessageToEdit)
	case keyboards.TypeOrder:
		return d.cancelOrder(s, cb.ID, cb.MessageToEdit)
	case keyboards.TypeCreateOrder:
		return d.createOrder(s)
	case keyboards.TypeEditOrder:
		return d.editOrder(s, cb.ID, cb.MessageToEdit)
	case keyboards.TypeChooseCountry:
		return d.chooseCountry(s, cb.ID, cb.CountryID, cb.MessageToEdit)
	case keyboards.TypeChooseDelivery:
		return d.chooseDelivery(s, cb.ID, cb.DeliveryID, cb.MessageToEdit)
	case keyboards.TypeChoosePayment:
		return d.choosePayment(s, cb.ID, cb.PaymentID, cb.MessageToEdit)
	case keyboards.TypeSubmitOrder:
		return d.submitOrder(s, cb.ID, cb.MessageToEdit)
	case keyboards.TypeCancelledOrder:
		return d.deleteDraft(s, cb.ID, cb.MessageToEdit)
	case keyboards.TypeAmount, keyboards.TypeSeen:
		return nil
	}
	slog.Warn("unknown callback type", "bot", s.bot.Slug, "type", cb.Type)
	return nil
}

func (d *Dispatcher) start(s *session) error {
	text := fmt.Sprintf(textWelcome, s.bot.Name)
	if s.bot.WelcomeText != "" {
		text = s.bot.WelcomeText
	}
	d.send(s, text, keyboards.MainMenu())
	return nil
}

func (d *Dispatcher) help(s *session) error {
	d.send(s, fmt.Sprintf(textHelp, s.bot.TelegramOperator), nil)
	return nil
}

// send delivers a new message. ok is false when Telegram refused it.
func (d *Dispatcher) send(s *session, text string, markup any) (tgbotapi.Message, bool) {
	msg, err := d.api.SendMessage(s.bot.Token, s.sub.ChatID, text, markup)
	if err != nil {
		slog.Warn("telegram send failed", "bot", s.bot.Slug, "chat_id", s.sub.ChatID, "error", err)
		return msg, false
	}
	return msg, true
}

// sendOrEdit sends text as a new message, or replaces the text of
// messageID when it is set. It returns the id of the resulting message.
func (d *Dispatcher) sendOrEdit(s *session, messageID int, text string) (int, bool) {
	if messageID == 0 {
		msg, ok := d.send(s, text, nil)
		return msg.MessageID, ok
	}
	if _, err := d.api.EditMessage(s.bot.Token, s.sub.ChatID, messageID, text, nil); err != nil {
		d.logEdit(s, messageID, err)
		return messageID, false
	}
	return messageID, true
}

// attach puts the keyboard under messageID.
func (d *Dispatcher) attach(s *session, messageID int, kb *keyboards.InlineBuilder, rowWidth int) (bool, error) {
	markup, err := kb.Markup(rowWidth)
	if err != nil {
		return false, err
	}
	if err := d.api.EditReplyMarkup(s.bot.Token, s.sub.ChatID, messageID, markup); err != nil {
		d.logEdit(s, messageID, err)
		return false, nil
	}
	return true, nil
}

// answer shows an alert for the pressed button.
func (d *Dispatcher) answer(s *session, text string) {
	if s.callbackID == "" {
		d.send(s, text, nil)
		return
	}
	if err := d.api.AnswerCallback(s.bot.Token, s.callbackID, text, true); err != nil {
		slog.Warn("telegram callback answer failed", "bot", s.bot.Slug, "callback_id", s.callbackID, "error", err)
	}
}

func (d *Dispatcher) logEdit(s *session, messageID int, err error) {
	slog.Warn("telegram update failed", "bot", s.bot.Slug, "chat_id", s.sub.ChatID, "message_id", messageID, "error", err)
}

func (d *Dispatcher) fail(s *session) {
	d.send(s, textError, nil)
}

func (d *Dispatcher) builder(s *session) *keyboards.InlineBuilder {
	return keyboards.NewInlineBuilder(s.ctx, d.keyboards)
}

func (d *Dispatcher) audit(s *session, action, resourceID string, metadata map[string]any) {
	d.auditLog.Log(s.ctx, audit.Telegram(s.bot.TenantID, action, "order", resourceID, metadata))
}
