// Package orders holds subscriber baskets and the orders placed from them.
package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopfront-hq/shopfront/internal/catalog"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrBasketNotFound        = errors.New("no active basket")
	ErrMultipleActiveBaskets = errors.New("subscriber already has an active basket")
	ErrInvalidAmount         = errors.New("amount must be positive and not exceed the stock")
	ErrEmptyBasket           = errors.New("basket is empty")
	ErrNotDraft              = errors.New("order is no longer a draft")
	ErrInvalidTransition     = errors.New("order status does not allow this change")
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusNew      Status = "new"
	StatusCanceled Status = "canceled"
	StatusAccepted Status = "accepted"
	StatusDone     Status = "done"
)

// Display is the name shown to subscribers.
func (s Status) Display() string {
	switch s {
	case StatusDraft:
		return "Чернетка"
	case StatusNew:
		return "Новий"
	case StatusCanceled:
		return "Відміна"
	case StatusAccepted:
		return "Прийнятий"
	case StatusDone:
		return "Закритий"
	}
	return string(s)
}

// Item is one basket line with the product's current price.
type Item struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Amount     int    `json:"amount"`
	PriceCents int64  `json:"price_cents"`
	Discount   int    `json:"discount"`
}

func (i Item) FinalPriceCents() int64 {
	return catalog.FinalPrice(i.PriceCents, i.Discount)
}

func (i Item) TotalCents() int64 {
	return i.FinalPriceCents() * int64(i.Amount)
}

type Basket struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	IsActive     bool      `json:"is_active"`
	Items        []Item    `json:"items"`
	CreatedAt    time.Time `json:"created_at"`
}

// PriceCents is the sum of final price times amount over all items.
func (b *Basket) PriceCents() int64 {
	var sum int64
	for _, it := range b.Items {
		sum += it.TotalCents()
	}
	return sum
}

// Order fields are ordered like the columns of selectOrder.
type Order struct {
	ID              string     `json:"id"`
	Number          int64      `json:"number"`
	BotID           string     `json:"bot_id"`
	SubscriberID    string     `json:"subscriber_id"`
	ChatID          int64      `json:"chat_id"`
	BasketID        string     `json:"basket_id"`
	Status          Status     `json:"status"`
	PriceCents      int64      `json:"price_cents"`
	CustomerComment string     `json:"customer_comment"`
	ShopComment     string     `json:"shop_comment"`
	CountryID       *string    `json:"country_id,omitempty"`
	DeliveryTypeID  *string    `json:"delivery_type_id,omitempty"`
	PaymentTypeID   *string    `json:"payment_type_id,omitempty"`
	Country         string     `json:"country"`
	DeliveryType    string     `json:"delivery_type"`
	PaymentType     string     `json:"payment_type"`
	Items           []Item     `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Products lists the items as "name x amount".
func (o *Order) Products() string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		parts = append(parts, fmt.Sprintf("%s x %d", it.Name, it.Amount))
	}
	return strings.Join(parts, ", ")
}

// Created formats the creation time the way subscribers see it.
func (o *Order) Created() string {
	return o.CreatedAt.UTC().Format("01/02/2006, 15:04:05")
}

// Summary counts a subscriber's non-draft orders.
type Summary struct {
	Total     int
	New       int
	Canceled  int
	Processed int
}

func Summarize(list []Order) Summary {
	var s Summary
	for _, o := range list {
		switch o.Status {
		case StatusDraft:
			continue
		case StatusNew:
			s.New++
		case StatusCanceled:
			s.Canceled++
		case StatusAccepted, StatusDone:
			s.Processed++
		}
		s.Total++
	}
	return s
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// StatusNotification is the message a subscriber gets when a moderator
// accepts or declines the order.
func StatusNotification(o *Order, operator string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Статус вашого замовлення був змінений на %s.\n", o.Status.Display())
	fmt.Fprintf(&b, "<b>Коментар магазину</b>: %s\n\n", orDash(o.ShopComment))
	fmt.Fprintf(&b, "<b>ID</b>: %d\n", o.Number)
	fmt.Fprintf(&b, "<b>Статус</b>: %s\n", o.Status.Display())
	fmt.Fprintf(&b, "<b>Ціна</b>: %s\n", catalog.FormatCents(o.PriceCents))
	fmt.Fprintf(&b, "<b>Дата створення</b>: %s\n", o.Created())
	fmt.Fprintf(&b, "<b>Ваш коментар</b>: %s\n", orDash(o.CustomerComment))
	fmt.Fprintf(&b, "<b>Товари</b>: %s\n\n", o.Products())
	fmt.Fprintf(&b, "Для отримання більш детальної інформації зв'яжіться з оператором магазину: @%s\n", operator)
	return b.String()
}

// Details renders the order block used in the subscriber's order list and
// in the draft summary.
func Details(o *Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>ID</b>: %d\n", o.Number)
	fmt.Fprintf(&b, "<b>Статус</b>: %s\n", o.Status.Display())
	fmt.Fprintf(&b, "<b>Ціна</b>: %s\n", catalog.FormatCents(o.PriceCents))
	fmt.Fprintf(&b, "<b>Створено</b>: %s\n", o.Created())
	fmt.Fprintf(&b, "<b>Ваш коментар</b>: %s\n", orDash(o.CustomerComment))
	fmt.Fprintf(&b, "<b>Коментар магазину</b>: %s\n", orDash(o.ShopComment))
	fmt.Fprintf(&b, "<b>Країна доставки</b>: %s\n", orDash(o.Country))
	fmt.Fprintf(&b, "<b>Тип доставки</b>: %s\n", orDash(o.DeliveryType))
	fmt.Fprintf(&b, "<b>Тип оплати</b>: %s\n", orDash(o.PaymentType))
	fmt.Fprintf(&b, "<b>Товари</b>: %s\n", o.Products())
	return b.String()
}
