package keyboards

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// InlineBuilder collects inline buttons, registering each payload as it is
// added. The first registry error is kept and returned by Markup.
type InlineBuilder struct {
	ctx     context.Context
	reg     *Registry
	buttons []tgbotapi.InlineKeyboardButton
	err     error
}

func NewInlineBuilder(ctx context.Context, reg *Registry) *InlineBuilder {
	return &InlineBuilder{ctx: ctx, reg: reg}
}

// Button adds a button with an arbitrary label and payload.
func (b *InlineBuilder) Button(text string, cb Callback) *InlineBuilder {
	if b.err != nil {
		return b
	}
	key, err := b.reg.Put(b.ctx, cb)
	if err != nil {
		b.err = err
		return b
	}
	b.buttons = append(b.buttons, tgbotapi.NewInlineKeyboardButtonData(text, key))
	return b
}

// Len reports how many buttons were added.
func (b *InlineBuilder) Len() int {
	return len(b.buttons)
}

// Markup lays the buttons out rowWidth per row.
func (b *InlineBuilder) Markup(rowWidth int) (tgbotapi.InlineKeyboardMarkup, error) {
	if b.err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, b.err
	}
	if rowWidth <= 0 {
		rowWidth = 2
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(b.buttons)+rowWidth-1)/rowWidth)
	for start := 0; start < len(b.buttons); start += rowWidth {
		end := min(start+rowWidth, len(b.buttons))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(b.buttons[start:end]...))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

// ProductCard is the state a product card keyboard is rendered from.
type ProductCard struct {
	ProductID  string
	Likes      int
	Views      int
	Stock      int
	Amount     int
	MessageID  int
	StartFrom  int
	CategoryID string
}

// ProductCard adds the six card buttons: like, buy and seen on the first
// row, then decrement, the current amount and increment. Use Markup(3).
func (b *InlineBuilder) ProductCard(card ProductCard) *InlineBuilder {
	incr, decr := card.Amount, card.Amount
	if card.Amount < card.Stock {
		incr++
	}
	if decr > 1 {
		decr--
	}

	b.Button(fmt.Sprintf("♥ %d", card.Likes), Callback{
		Type: TypeLike, ID: card.ProductID, MessageToEdit: card.MessageID, StartFrom: card.StartFrom,
		CategoryID: card.CategoryID,
	})
	b.Button("Придбати 💸", Callback{Type: TypeAddCart, ID: card.ProductID, Amount: card.Amount})
	b.Button(fmt.Sprintf("👀 %d", card.Views), Callback{Type: TypeSeen})
	b.Button("➖", Callback{
		Type: TypeDecr, ID: card.ProductID, MessageToEdit: card.MessageID, Amount: decr,
		StartFrom: card.StartFrom, CategoryID: card.CategoryID,
	})
	b.Button(strconv.Itoa(card.Amount)+" шт.", Callback{Type: TypeAmount})
	b.Button("➕", Callback{
		Type: TypeIncr, ID: card.ProductID, MessageToEdit: card.MessageID, Amount: incr,
		StartFrom: card.StartFrom, CategoryID: card.CategoryID,
	})
	return b
}

// PrevPage adds a button that shows the product at startFrom.
func (b *InlineBuilder) PrevPage(startFrom, cardMessageID int, categoryID string) *InlineBuilder {
	return b.Button("Минула сторінка 🔼", Callback{
		Type: TypePrev, Products: true, StartFrom: startFrom, MessageToEdit: cardMessageID, CategoryID: categoryID,
	})
}

// NextPage adds a button that shows the product at startFrom.
func (b *InlineBuilder) NextPage(startFrom, cardMessageID int, categoryID string) *InlineBuilder {
	return b.Button("Наступна сторінка ⬇", Callback{
		Type: TypeNext, Products: true, StartFrom: startFrom, MessageToEdit: cardMessageID, CategoryID: categoryID,
	})
}

func (b *InlineBuilder) Category(id, name string) *InlineBuilder {
	return b.Button(name, Callback{Type: TypeCategory, ID: id})
}

func (b *InlineBuilder) ChooseCountry(orderID, countryID, name string, messageID int) *InlineBuilder {
	return b.Button(name, Callback{Type: TypeChooseCountry, ID: orderID, CountryID: countryID, MessageToEdit: messageID})
}

func (b *InlineBuilder) ChooseDelivery(orderID, deliveryID, name string, messageID int) *InlineBuilder {
	return b.Button(name, Callback{Type: TypeChooseDelivery, ID: orderID, DeliveryID: deliveryID, MessageToEdit: messageID})
}

func (b *InlineBuilder) ChoosePayment(orderID, paymentID, name string, messageID int) *InlineBuilder {
	return b.Button(name, Callback{Type: TypeChoosePayment, ID: orderID, PaymentID: paymentID, MessageToEdit: messageID})
}

func (b *InlineBuilder) EditOrder(orderID string, messageID int) *InlineBuilder {
	return b.Button("Редагувати 📝", Callback{Type: TypeEditOrder, ID: orderID, MessageToEdit: messageID})
}

func (b *InlineBuilder) SubmitOrder(orderID string, messageID int) *InlineBuilder {
	return b.Button("Підтвердити ✅", Callback{Type: TypeSubmitOrder, ID: orderID, MessageToEdit: messageID})
}

func (b *InlineBuilder) CancelDraft(orderID string, messageID int) *InlineBuilder {
	return b.Button("Відмінити ❌", Callback{Type: TypeCancelledOrder, ID: orderID, MessageToEdit: messageID})
}

// CancelOrder adds the button shown under the orders list for a NEW order.
func (b *InlineBuilder) CancelOrder(orderID string, number int64, messageID int) *InlineBuilder {
	return b.Button(fmt.Sprintf("Відмінити замовлення номер %d", number),
		Callback{Type: TypeOrder, ID: orderID, MessageToEdit: messageID})
}

func (b *InlineBuilder) ClearBasket(basketID string, messageID int) *InlineBuilder {
	return b.Button("Очистити кошик🗑", Callback{Type: TypeClearCart, ID: basketID, MessageToEdit: messageID})
}

func (b *InlineBuilder) CreateOrder() *InlineBuilder {
	return b.Button("Створити замовлення 🛒", Callback{Type: TypeCreateOrder})
}
