package shop

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/keyboards"
	"github.com/shopfront-hq/shopfront/internal/orders"
)

// createOrder turns the active basket into a draft and asks for the
// delivery country.
func (d *Dispatcher) createOrder(s *session) error {
	o, err := d.orders.CreateDraft(s.ctx, s.q, s.bot.ID, s.sub.ID)
	switch {
	case errors.Is(err, orders.ErrBasketNotFound):
		d.answer(s, textNoBasket)
		return nil
	case errors.Is(err, orders.ErrEmptyBasket):
		d.answer(s, textEmptyBasket)
		return nil
	case err != nil:
		return err
	}
	return d.askCountry(s, o.ID, 0)
}

// editOrder restarts the choices of a draft from the country step.
func (d *Dispatcher) editOrder(s *session, orderID string, messageID int) error {
	o, err := d.orders.GetForSubscriber(s.ctx, s.q, s.sub.ID, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		d.answer(s, textAnswerError)
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status != orders.StatusDraft {
		d.answer(s, textNotEditable)
		return nil
	}
	return d.askCountry(s, o.ID, messageID)
}

func (d *Dispatcher) askCountry(s *session, orderID string, messageID int) error {
	countries, err := d.bots.Countries(s.ctx, s.q, s.bot.ID)
	if err != nil {
		return err
	}
	id, ok := d.sendOrEdit(s, messageID, textChooseCountry)
	if !ok {
		d.answer(s, textAnswerError)
		return nil
	}
	kb := d.builder(s)
	for _, c := range countries {
		kb.ChooseCountry(orderID, c.ID, c.Name, id)
	}
	return d.attachOrAnswer(s, id, kb)
}

func (d *Dispatcher) chooseCountry(s *session, orderID, countryID string, messageID int) error {
	o, err := d.orders.SetCountry(s.ctx, s.q, s.sub.ID, orderID, countryID)
	if handled, err := d.draftError(s, err); handled || err != nil {
		return err
	}
	deliveries, err := d.bots.DeliveryTypes(s.ctx, s.q, s.bot.ID)
	if err != nil {
		return err
	}
	id, ok := d.sendOrEdit(s, messageID, textChooseDelivery)
	if !ok {
		d.answer(s, textAnswerError)
		return nil
	}
	kb := d.builder(s)
	for _, dt := range deliveries {
		kb.ChooseDelivery(o.ID, dt.ID, dt.Name, id)
	}
	return d.attachOrAnswer(s, id, kb)
}

func (d *Dispatcher) chooseDelivery(s *session, orderID, deliveryID string, messageID int) error {
	o, err := d.orders.SetDelivery(s.ctx, s.q, s.sub.ID, orderID, deliveryID)
	if handled, err := d.draftError(s, err); handled || err != nil {
		return err
	}
	payments, err := d.bots.PaymentTypes(s.ctx, s.q, s.bot.ID)
	if err != nil {
		return err
	}
	id, ok := d.sendOrEdit(s, messageID, textChoosePayment)
	if !ok {
		d.answer(s, textAnswerError)
		return nil
	}
	kb := d.builder(s)
	for _, p := range payments {
		kb.ChoosePayment(o.ID, p.ID, p.Name, id)
	}
	return d.attachOrAnswer(s, id, kb)
}

// choosePayment completes the draft and shows its summary with the
// edit, submit and cancel buttons.
func (d *Dispatcher) choosePayment(s *session, orderID, paymentID string, messageID int) error {
	o, err := d.orders.SetPayment(s.ctx, s.q, s.sub.ID, orderID, paymentID)
	if handled, err := d.draftError(s, err); handled || err != nil {
		return err
	}
	id, ok := d.sendOrEdit(s, messageID, draftSummary(o, s.bot.TelegramOperator))
	if !ok {
		d.answer(s, textAnswerError)
		return nil
	}
	kb := d.builder(s).EditOrder(o.ID, id).SubmitOrder(o.ID, id).CancelDraft(o.ID, id)
	return d.attachOrAnswer(s, id, kb)
}

func (d *Dispatcher) submitOrder(s *session, orderID string, messageID int) error {
	o, err := d.orders.Submit(s.ctx, s.q, s.sub.ID, orderID)
	if handled, err := d.draftError(s, err); handled || err != nil {
		return err
	}
	d.audit(s, audit.ActionOrderSubmitted, o.ID, map[string]any{"number": o.Number})
	d.closeDraft(s, messageID, textOrderSubmitted)
	return nil
}

func (d *Dispatcher) deleteDraft(s *session, orderID string, messageID int) error {
	err := d.orders.DeleteDraft(s.ctx, s.q, s.sub.ID, orderID)
	if handled, err := d.draftError(s, err); handled || err != nil {
		return err
	}
	d.closeDraft(s, messageID, textOrderDeleted)
	return nil
}

// closeDraft replaces the draft summary with text and drops its buttons.
func (d *Dispatcher) closeDraft(s *session, messageID int, text string) {
	markup := emptyMarkup()
	if _, err := d.api.EditMessage(s.bot.Token, s.sub.ChatID, messageID, text, &markup); err != nil {
		d.logEdit(s, messageID, err)
		d.answer(s, textAnswerError)
	}
}

// draftError answers the subscriber for the expected failures of a draft
// update and reports whether it did.
func (d *Dispatcher) draftError(s *session, err error) (bool, error) {
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, orders.ErrOrderNotFound):
		d.answer(s, textAnswerError)
		return true, nil
	case errors.Is(err, orders.ErrNotDraft):
		d.answer(s, textNotEditable)
		return true, nil
	case errors.Is(err, orders.ErrMultipleActiveBaskets):
		d.answer(s, textAnswerError)
		return true, nil
	}
	return true, err
}

// attachOrAnswer puts a one-column keyboard under messageID and alerts the
// subscriber when Telegram refuses it.
func (d *Dispatcher) attachOrAnswer(s *session, messageID int, kb *keyboards.InlineBuilder) error {
	ok, err := d.attach(s, messageID, kb, 1)
	if err != nil {
		return err
	}
	if !ok {
		d.answer(s, textAnswerError)
	}
	return nil
}

// showOrders lists the subscriber's orders with a cancel button for every
// new one.
func (d *Dispatcher) showOrders(s *session, messageID int) error {
	list, err := d.orders.ListForSubscriber(s.ctx, s.q, s.sub.ID)
	if err != nil {
		return err
	}

	id, ok := d.sendOrEdit(s, messageID, ordersText(list))
	if !ok {
		d.fail(s)
		return nil
	}

	kb := d.builder(s)
	for _, o := range list {
		if o.Status == orders.StatusNew {
			kb.CancelOrder(o.ID, o.Number, id)
		}
	}
	if kb.Len() == 0 {
		return nil
	}
	if ok, err := d.attach(s, id, kb, 2); err != nil {
		return err
	} else if !ok {
		d.fail(s)
	}
	return nil
}

// cancelOrder cancels one of the caller's new orders and refreshes the list.
func (d *Dispatcher) cancelOrder(s *session, orderID string, messageID int) error {
	o, err := d.orders.CancelBySubscriber(s.ctx, s.q, s.sub.ID, orderID)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		d.answer(s, textAnswerError)
		return nil
	case errors.Is(err, orders.ErrInvalidTransition):
		d.answer(s, textNotCancelable)
	case err != nil:
		return err
	default:
		d.audit(s, audit.ActionOrderCanceled, o.ID, map[string]any{"number": o.Number})
	}
	return d.showOrders(s, messageID)
}

// comment handles "/comment <number> <text>".
func (d *Dispatcher) comment(s *session, text string) error {
	parts := strings.SplitN(text, " ", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[2]) == "" {
		d.fail(s)
		return nil
	}
	number, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		d.fail(s)
		return nil
	}

	_, err = d.orders.SetCustomerComment(s.ctx, s.q, s.sub.ID, number, parts[2])
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		d.fail(s)
	case errors.Is(err, orders.ErrNotDraft):
		d.send(s, textNotEditable, nil)
	case err != nil:
		return err
	default:
		d.send(s, textCommentSaved, nil)
	}
	return nil
}

func draftSummary(o *orders.Order, operator string) string {
	return textDraftHeader + orders.Details(o) + fmt.Sprintf(textDraftCommentTip, operator)
}

func ordersText(list []orders.Order) string {
	sum := orders.Summarize(list)
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Загальна кількість замолвень: %d\n", sum.Total)
	fmt.Fprintf(&b, "Кількість активних: %d\n", sum.New)
	fmt.Fprintf(&b, "Кількість закритих: %d\n", sum.Canceled)
	fmt.Fprintf(&b, "Кількість опрацьованних: %d\n", sum.Processed)
	b.WriteString("</b>\n")
	for i := range list {
		b.WriteString(orders.Details(&list[i]))
		b.WriteString("\n")
	}
	return b.String()
}
