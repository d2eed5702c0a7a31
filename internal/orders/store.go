package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

const itemsOf = `COALESCE((
	SELECT json_agg(json_build_object(
	           'product_id', p.id, 'name', p.name, 'amount', bi.amount,
	           'price_cents', p.price_cents, 'discount', p.discount) ORDER BY p.name, bi.id)
	FROM basket_items bi JOIN products p ON p.id = bi.product_id
	WHERE bi.basket_id = %s), '[]')`

var selectBasket = `SELECT b.id, b.subscriber_id, b.is_active, ` + fmt.Sprintf(itemsOf, "b.id") + `, b.created_at
	FROM baskets b`

var selectOrder = `
	SELECT o.id, o.number, o.bot_id, o.subscriber_id, s.chat_id, o.basket_id, o.status, o.price_cents,
	       o.customer_comment, o.shop_comment,
	       o.country_id::text, o.delivery_type_id::text, o.payment_type_id::text,
	       COALESCE(c.name, ''), COALESCE(d.name, ''), COALESCE(pt.name, ''),
	       ` + fmt.Sprintf(itemsOf, "o.basket_id") + `,
	       o.created_at, o.closed_at
	FROM orders o
	JOIN subscribers s ON s.id = o.subscriber_id
	LEFT JOIN countries c ON c.id = o.country_id
	LEFT JOIN delivery_types d ON d.id = o.delivery_type_id
	LEFT JOIN payment_types pt ON pt.id = o.payment_type_id`

// Store persists baskets and orders. Subscriber operations are scoped by
// subscriber id, moderator operations by bot id.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) ActiveBasket(ctx context.Context, q database.Querier, subscriberID string) (*Basket, error) {
	rows, err := q.Query(ctx, selectBasket+` WHERE b.subscriber_id = $1 AND b.is_active`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("getting basket: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Basket])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBasketNotFound
		}
		return nil, fmt.Errorf("getting basket: %w", err)
	}
	return b, nil
}

// OpenBasket returns the active basket, creating it when there is none.
func (s *Store) OpenBasket(ctx context.Context, q database.Querier, subscriberID string) (*Basket, error) {
	_, err := q.Exec(ctx,
		`INSERT INTO baskets (tenant_id, subscriber_id)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1)
		 ON CONFLICT (subscriber_id) WHERE is_active DO NOTHING`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("opening basket: %w", err)
	}
	return s.ActiveBasket(ctx, q, subscriberID)
}

// AddToBasket adds amount units of a product of the bot to the
// subscriber's active basket. The basket total for the product may not
// exceed the stock.
func (s *Store) AddToBasket(ctx context.Context, q database.Querier, botID, subscriberID, productID string, amount int) (*Basket, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var stock int
	err := q.QueryRow(ctx,
		`SELECT amount FROM products WHERE id::text = $1 AND bot_id = $2`, productID, botID,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("reading stock: %w", err)
	}
	if amount > stock {
		return nil, ErrInvalidAmount
	}

	basket, err := s.OpenBasket(ctx, q, subscriberID)
	if err != nil {
		return nil, err
	}

	inBasket := 0
	for _, it := range basket.Items {
		if it.ProductID == productID {
			inBasket += it.Amount
		}
	}
	if inBasket+amount > stock {
		return nil, ErrInvalidAmount
	}

	if inBasket > 0 {
		_, err = q.Exec(ctx,
			`UPDATE basket_items SET amount = amount + $3 WHERE basket_id = $1 AND product_id = $2`,
			basket.ID, productID, amount)
	} else {
		_, err = q.Exec(ctx,
			`INSERT INTO basket_items (tenant_id, basket_id, product_id, amount)
			 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3)`,
			basket.ID, productID, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("adding basket item: %w", err)
	}
	return s.ActiveBasket(ctx, q, subscriberID)
}

// ClearBasket empties the active basket and returns it.
func (s *Store) ClearBasket(ctx context.Context, q database.Querier, subscriberID string) (*Basket, error) {
	basket, err := s.ActiveBasket(ctx, q, subscriberID)
	if err != nil {
		return nil, err
	}
	if _, err := q.Exec(ctx, `DELETE FROM basket_items WHERE basket_id = $1`, basket.ID); err != nil {
		return nil, fmt.Errorf("clearing basket: %w", err)
	}
	basket.Items = nil
	return basket, nil
}

// CreateDraft turns the active basket into a draft order. The basket price
// is captured and the basket stops being active.
func (s *Store) CreateDraft(ctx context.Context, q database.Querier, botID, subscriberID string) (*Order, error) {
	basket, err := s.ActiveBasket(ctx, q, subscriberID)
	if err != nil {
		return nil, err
	}
	if len(basket.Items) == 0 {
		return nil, ErrEmptyBasket
	}

	var id string
	err = q.QueryRow(ctx,
		`INSERT INTO orders (tenant_id, bot_id, subscriber_id, basket_id, price_cents)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3, $4)
		 RETURNING id`,
		botID, subscriberID, basket.ID, basket.PriceCents(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	if _, err := q.Exec(ctx, `UPDATE baskets SET is_active = false WHERE id = $1`, basket.ID); err != nil {
		return nil, fmt.Errorf("archiving basket: %w", err)
	}
	return s.GetForSubscriber(ctx, q, subscriberID, id)
}

func (s *Store) GetForSubscriber(ctx context.Context, q database.Querier, subscriberID, id string) (*Order, error) {
	rows, err := q.Query(ctx, selectOrder+` WHERE o.id::text = $1 AND o.subscriber_id = $2`, id, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return collectOne(rows)
}

func (s *Store) Get(ctx context.Context, q database.Querier, botID, id string) (*Order, error) {
	rows, err := q.Query(ctx, selectOrder+` WHERE o.id::text = $1 AND o.bot_id = $2`, id, botID)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return collectOne(rows)
}

func (s *Store) SetCountry(ctx context.Context, q database.Querier, subscriberID, id, countryID string) (*Order, error) {
	return s.setChoice(ctx, q, "country_id", subscriberID, id, countryID)
}

func (s *Store) SetDelivery(ctx context.Context, q database.Querier, subscriberID, id, deliveryTypeID string) (*Order, error) {
	return s.setChoice(ctx, q, "delivery_type_id", subscriberID, id, deliveryTypeID)
}

func (s *Store) SetPayment(ctx context.Context, q database.Querier, subscriberID, id, paymentTypeID string) (*Order, error) {
	return s.setChoice(ctx, q, "payment_type_id", subscriberID, id, paymentTypeID)
}

// setChoice writes one of the reference columns of a draft. column is
// always one of the constants above.
func (s *Store) setChoice(ctx context.Context, q database.Querier, column, subscriberID, id, refID string) (*Order, error) {
	tag, err := q.Exec(ctx,
		`UPDATE orders SET `+column+` = $3::UUID
		 WHERE id::text = $1 AND subscriber_id = $2 AND status = 'draft'`,
		id, subscriberID, refID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("updating order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.draftMiss(ctx, q, subscriberID, id)
	}
	return s.GetForSubscriber(ctx, q, subscriberID, id)
}

// draftMiss explains why a draft-only update matched no row.
func (s *Store) draftMiss(ctx context.Context, q database.Querier, subscriberID, id string) error {
	o, err := s.GetForSubscriber(ctx, q, subscriberID, id)
	if err != nil {
		return err
	}
	if o.Status != StatusDraft {
		return ErrNotDraft
	}
	return ErrOrderNotFound
}

// Submit moves a draft to new.
func (s *Store) Submit(ctx context.Context, q database.Querier, subscriberID, id string) (*Order, error) {
	tag, err := q.Exec(ctx,
		`UPDATE orders SET status = 'new'
		 WHERE id::text = $1 AND subscriber_id = $2 AND status = 'draft'`, id, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("submitting order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.draftMiss(ctx, q, subscriberID, id)
	}
	return s.GetForSubscriber(ctx, q, subscriberID, id)
}

// DeleteDraft removes a draft. Its basket becomes active again unless the
// subscriber has opened a new one meanwhile.
func (s *Store) DeleteDraft(ctx context.Context, q database.Querier, subscriberID, id string) error {
	var basketID string
	err := q.QueryRow(ctx,
		`DELETE FROM orders WHERE id::text = $1 AND subscriber_id = $2 AND status = 'draft'
		 RETURNING basket_id`, id, subscriberID,
	).Scan(&basketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.draftMiss(ctx, q, subscriberID, id)
		}
		return fmt.Errorf("deleting order: %w", err)
	}

	_, err = q.Exec(ctx,
		`UPDATE baskets SET is_active = true
		 WHERE id = $1
		   AND NOT EXISTS (SELECT 1 FROM baskets WHERE subscriber_id = $2 AND is_active)
		   AND NOT EXISTS (SELECT 1 FROM orders WHERE basket_id = $1)`,
		basketID, subscriberID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrMultipleActiveBaskets
		}
		return fmt.Errorf("restoring basket: %w", err)
	}
	return nil
}

// SetCustomerComment stores the subscriber's comment on a draft addressed
// by its number.
func (s *Store) SetCustomerComment(ctx context.Context, q database.Querier, subscriberID string, number int64, comment string) (*Order, error) {
	var id string
	var status Status
	err := q.QueryRow(ctx,
		`SELECT id, status FROM orders WHERE number = $1 AND subscriber_id = $2`, number, subscriberID,
	).Scan(&id, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("finding order: %w", err)
	}
	if status != StatusDraft {
		return nil, ErrNotDraft
	}
	if _, err := q.Exec(ctx, `UPDATE orders SET customer_comment = $2 WHERE id = $1`, id, comment); err != nil {
		return nil, fmt.Errorf("saving comment: %w", err)
	}
	return s.GetForSubscriber(ctx, q, subscriberID, id)
}

// CancelBySubscriber cancels one of the subscriber's new orders.
func (s *Store) CancelBySubscriber(ctx context.Context, q database.Querier, subscriberID, id string) (*Order, error) {
	tag, err := q.Exec(ctx,
		`UPDATE orders SET status = 'canceled', closed_at = now()
		 WHERE id::text = $1 AND subscriber_id = $2 AND status = 'new'`, id, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("canceling order: %w", err)
	}
	o, err := s.GetForSubscriber(ctx, q, subscriberID, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvalidTransition
	}
	return o, nil
}

// ListForSubscriber returns the subscriber's orders except drafts, oldest first.
func (s *Store) ListForSubscriber(ctx context.Context, q database.Querier, subscriberID string) ([]Order, error) {
	rows, err := q.Query(ctx,
		selectOrder+` WHERE o.subscriber_id = $1 AND o.status <> 'draft' ORDER BY o.number`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Order])
}

// List returns the bot's orders except drafts, newest first. An empty
// status lists all of them.
func (s *Store) List(ctx context.Context, q database.Querier, botID string, status Status) ([]Order, error) {
	rows, err := q.Query(ctx,
		selectOrder+` WHERE o.bot_id = $1 AND o.status <> 'draft' AND ($2 = '' OR o.status = $2)
		 ORDER BY o.number DESC`, botID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Order])
}

// Accept moves a new order to accepted and counts its products as acquired.
func (s *Store) Accept(ctx context.Context, q database.Querier, botID, id, shopComment string) (*Order, error) {
	o, err := s.resolve(ctx, q, botID, id, shopComment, StatusAccepted, StatusNew)
	if err != nil {
		return nil, err
	}
	_, err = q.Exec(ctx,
		`UPDATE products p SET acquired_count = p.acquired_count + bi.amount
		 FROM basket_items bi
		 WHERE bi.basket_id = $1 AND bi.product_id = p.id`, o.BasketID)
	if err != nil {
		return nil, fmt.Errorf("counting acquired products: %w", err)
	}
	return o, nil
}

// Decline cancels a new or accepted order.
func (s *Store) Decline(ctx context.Context, q database.Querier, botID, id, shopComment string) (*Order, error) {
	return s.resolve(ctx, q, botID, id, shopComment, StatusCanceled, StatusNew, StatusAccepted)
}

// Complete closes an accepted order.
func (s *Store) Complete(ctx context.Context, q database.Querier, botID, id string) (*Order, error) {
	return s.resolve(ctx, q, botID, id, "", StatusDone, StatusAccepted)
}

// resolve applies a moderator transition. A non-empty comment replaces the
// shop comment.
func (s *Store) resolve(ctx context.Context, q database.Querier, botID, id, comment string, to Status, from ...Status) (*Order, error) {
	current, err := s.Get(ctx, q, botID, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, st := range from {
		if current.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	_, err = q.Exec(ctx,
		`UPDATE orders
		 SET status = $2,
		     shop_comment = CASE WHEN $3 = '' THEN shop_comment ELSE $3 END,
		     closed_at = now()
		 WHERE id = $1`,
		current.ID, string(to), comment)
	if err != nil {
		return nil, fmt.Errorf("updating order status: %w", err)
	}
	return s.Get(ctx, q, botID, id)
}

func collectOne(rows pgx.Rows) (*Order, error) {
	o, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Order])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("reading order: %w", err)
	}
	return o, nil
}
