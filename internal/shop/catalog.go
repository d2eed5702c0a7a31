package shop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/keyboards"
)

// cardRequest describes which product card to render and where.
type cardRequest struct {
	startFrom int
	// cardMessageID is the photo message to edit; zero sends a new one.
	cardMessageID int
	// pageMessageID is the pagination message to edit; zero sends a new one.
	pageMessageID int
	categoryID    string
	// productID pins the card to one product when it is still listed.
	productID string
	amount    int
	// cardOnly re-renders the card without pagination or a view.
	cardOnly bool
}

func (d *Dispatcher) showCategories(s *session) error {
	categories, err := d.catalog.ListCategories(s.ctx, s.q, s.bot.ID)
	if err != nil {
		return err
	}
	kb := d.builder(s)
	for _, c := range categories {
		kb.Category(c.ID, c.Name)
	}
	markup, err := kb.Markup(2)
	if err != nil {
		return err
	}
	d.send(s, textCategories, markup)
	return nil
}

func (d *Dispatcher) showCatalog(s *session, req cardRequest) error {
	products, err := d.catalog.ListVisible(s.ctx, s.q, s.bot.ID, req.categoryID)
	if err != nil {
		return err
	}

	if req.productID != "" {
		for i, p := range products {
			if p.ID == req.productID {
				req.startFrom = i
				break
			}
		}
	}
	if req.startFrom < 0 {
		d.fail(s)
		return nil
	}
	if req.startFrom >= len(products) {
		d.send(s, textAllViewed, nil)
		return nil
	}

	product := products[req.startFrom]
	req.amount = max(1, min(req.amount, product.Amount))

	cardID, ok := d.renderCard(s, product, req)
	if !ok {
		d.fail(s)
		return nil
	}
	kb := d.builder(s).ProductCard(keyboards.ProductCard{
		ProductID:  product.ID,
		Likes:      product.Likes,
		Views:      product.ViewsCount,
		Stock:      product.Amount,
		Amount:     req.amount,
		MessageID:  cardID,
		StartFrom:  req.startFrom,
		CategoryID: req.categoryID,
	})
	if _, err := d.attach(s, cardID, kb, 3); err != nil {
		return err
	}
	if req.cardOnly {
		return nil
	}

	pages := d.builder(s)
	if req.startFrom > 0 {
		pages.PrevPage(req.startFrom-1, cardID, req.categoryID)
	}
	if req.startFrom+1 < len(products) {
		pages.NextPage(req.startFrom+1, cardID, req.categoryID)
	}
	markup, err := pages.Markup(2)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(textShown, req.startFrom+1, len(products))
	if req.pageMessageID == 0 {
		d.send(s, text, markup)
	} else if _, err := d.api.EditMessage(s.bot.Token, s.sub.ChatID, req.pageMessageID, text, &markup); err != nil {
		d.logEdit(s, req.pageMessageID, err)
	}

	_, err = d.catalog.IncrementViews(s.ctx, s.q, product.ID)
	return err
}

// renderCard sends or edits the product photo and returns its message id.
func (d *Dispatcher) renderCard(s *session, p *catalog.Product, req cardRequest) (int, bool) {
	photo := p.MainPhotoURL
	if photo == "" {
		photo = catalog.NoImageURL
	}
	caption := cardText(p, s.bot.CurrencySymbol)

	if req.cardMessageID == 0 {
		msg, err := d.api.SendPhoto(s.bot.Token, s.sub.ChatID, photo, caption)
		if err != nil {
			d.logEdit(s, 0, err)
			return 0, false
		}
		return msg.MessageID, true
	}
	if _, err := d.api.EditPhoto(s.bot.Token, s.sub.ChatID, req.cardMessageID, photo, caption); err != nil {
		d.logEdit(s, req.cardMessageID, err)
		return 0, false
	}
	return req.cardMessageID, true
}

func (d *Dispatcher) like(s *session, cb keyboards.Callback) error {
	if _, err := d.catalog.IncrementLikes(s.ctx, s.q, cb.ID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			d.fail(s)
			return nil
		}
		return err
	}
	return d.showCatalog(s, cardRequest{
		startFrom:     cb.StartFrom,
		cardMessageID: cb.MessageToEdit,
		categoryID:    cb.CategoryID,
		productID:     cb.ID,
		amount:        1,
		cardOnly:      true,
	})
}

// cardText is the caption of a product card.
func cardText(p *catalog.Product, currency string) string {
	categories := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		categories = append(categories, titleCase(c))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Назва: %s</b>\n", p.Name)
	fmt.Fprintf(&b, "Опис: %s\n", orDash(p.Description))
	fmt.Fprintf(&b, "Ціна: %s %s\n", catalog.FormatCents(p.FinalPriceCents()), currency)
	fmt.Fprintf(&b, "Категорії: %s \n", strings.Join(categories, ", "))
	if p.URL != "" {
		fmt.Fprintf(&b, "Посилання на товар в інтернет магазині: %s", p.URL)
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
