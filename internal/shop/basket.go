package shop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/orders"
)

// showBasket renders the active basket into messageID, or a new message
// when messageID is zero.
func (d *Dispatcher) showBasket(s *session, messageID int) error {
	basket, err := d.orders.ActiveBasket(s.ctx, s.q, s.sub.ID)
	if errors.Is(err, orders.ErrBasketNotFound) {
		d.send(s, textNoBasket, nil)
		return nil
	}
	if err != nil {
		return err
	}

	id, ok := d.sendOrEdit(s, messageID, basketText(basket))
	if !ok {
		d.fail(s)
		return nil
	}
	kb := d.builder(s).ClearBasket(basket.ID, id).CreateOrder()
	_, err = d.attach(s, id, kb, 1)
	return err
}

func (d *Dispatcher) clearBasket(s *session, messageID int) error {
	_, err := d.orders.ClearBasket(s.ctx, s.q, s.sub.ID)
	if errors.Is(err, orders.ErrBasketNotFound) {
		d.answer(s, textNoBasket)
		return nil
	}
	if err != nil {
		return err
	}
	return d.showBasket(s, messageID)
}

// addToBasket puts amount units of a product into the active basket,
// opening one when needed.
func (d *Dispatcher) addToBasket(s *session, productID string, amount int) error {
	product, err := d.catalog.GetProduct(s.ctx, s.q, s.bot.ID, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		d.answer(s, textAnswerError)
		return nil
	}
	if err != nil {
		return err
	}
	if amount <= 0 || amount > product.Amount {
		d.answer(s, textTooMany)
		return nil
	}

	_, err = d.orders.AddToBasket(s.ctx, s.q, s.bot.ID, s.sub.ID, product.ID, amount)
	switch {
	case errors.Is(err, orders.ErrInvalidAmount):
		d.answer(s, textTooMany)
		return nil
	case errors.Is(err, catalog.ErrProductNotFound):
		d.answer(s, textAnswerError)
		return nil
	case err != nil:
		return err
	}
	if _, err := d.catalog.IncrementAddToBasket(s.ctx, s.q, product.ID); err != nil {
		return err
	}
	d.answer(s, textAddedToBasket)
	return nil
}

func basketText(b *orders.Basket) string {
	var items strings.Builder
	if len(b.Items) == 0 {
		items.WriteString("-\n")
	}
	for _, it := range b.Items {
		fmt.Fprintf(&items, "<i><u>%s</u></i> x %d (%sx%d=%s)\n",
			it.Name, it.Amount, catalog.FormatCents(it.FinalPriceCents()), it.Amount, catalog.FormatCents(it.TotalCents()))
	}
	fmt.Fprintf(&items, "-------------\nСума: <i><b>%s</b></i>", catalog.FormatCents(b.PriceCents()))
	return "Ваш кошик:\n" + items.String() + "\n"
}
