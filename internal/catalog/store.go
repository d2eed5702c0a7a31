package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/slug"
)

const selectProduct = `
	SELECT p.id, p.bot_id, p.name, p.slug, p.description, p.amount, p.article, p.price_cents,
	       p.discount, p.visible, p.url, p.likes, p.views_count, p.add_to_basket_count, p.acquired_count,
	       ARRAY(SELECT c.id::text FROM categories c JOIN product_categories pc ON pc.category_id = c.id
	             WHERE pc.product_id = p.id ORDER BY c.name),
	       ARRAY(SELECT c.name FROM categories c JOIN product_categories pc ON pc.category_id = c.id
	             WHERE pc.product_id = p.id ORDER BY c.name),
	       COALESCE((SELECT ph.image_url FROM product_photos ph WHERE ph.product_id = p.id
	                 ORDER BY ph.is_main DESC, ph.created_at LIMIT 1), ''),
	       p.created_at, p.updated_at
	FROM products p`

// Store persists categories, products and photos. All methods expect a
// tenant-scoped Querier.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) CreateCategory(ctx context.Context, q database.Querier, botID, name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRequiredField
	}
	c := Category{BotID: botID, Name: name, Description: description}
	err := q.QueryRow(ctx,
		`INSERT INTO categories (tenant_id, bot_id, name, description)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3)
		 RETURNING id, created_at`,
		botID, name, description,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("creating category: %w", err)
	}
	return &c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, q database.Querier, botID, id, name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRequiredField
	}
	c := Category{ID: id, BotID: botID, Name: name, Description: description}
	err := q.QueryRow(ctx,
		`UPDATE categories SET name = $3, description = $4
		 WHERE id = $1 AND bot_id = $2
		 RETURNING created_at`,
		id, botID, name, description,
	).Scan(&c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("updating category: %w", err)
	}
	return &c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, q database.Querier, botID, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND bot_id = $2`, id, botID)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, q database.Querier, botID, id string) (*Category, error) {
	var c Category
	err := q.QueryRow(ctx,
		`SELECT id, bot_id, name, description, created_at FROM categories WHERE id = $1 AND bot_id = $2`,
		id, botID,
	).Scan(&c.ID, &c.BotID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return &c, nil
}

// ListCategories returns the bot's categories ordered by name.
func (s *Store) ListCategories(ctx context.Context, q database.Querier, botID string) ([]Category, error) {
	rows, err := q.Query(ctx,
		`SELECT id, bot_id, name, description, created_at FROM categories WHERE bot_id = $1 ORDER BY name`,
		botID)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Category])
}

// CreateProduct inserts a product with a slug unique within the bot.
func (s *Store) CreateProduct(ctx context.Context, q database.Querier, botID string, in ProductInput) (*Product, error) {
	cents, err := in.Validate()
	if err != nil {
		return nil, err
	}

	productSlug, err := slug.Unique(ctx, in.Name, "product", func(ctx context.Context, candidate string) (bool, error) {
		var taken bool
		err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE bot_id = $1 AND slug = $2)`, botID, candidate,
		).Scan(&taken)
		return taken, err
	})
	if err != nil {
		return nil, fmt.Errorf("generating product slug: %w", err)
	}

	var id string
	err = q.QueryRow(ctx,
		`INSERT INTO products (tenant_id, bot_id, name, slug, description, amount, article,
		                       price_cents, discount, visible, url)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		botID, in.Name, productSlug, in.Description, in.Amount, in.Article, cents, in.Discount, in.visible(), in.URL,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	if err := s.setCategories(ctx, q, botID, id, in.CategoryIDs); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, q, botID, id)
}

func (s *Store) UpdateProduct(ctx context.Context, q database.Querier, botID, id string, in ProductInput) (*Product, error) {
	cents, err := in.Validate()
	if err != nil {
		return nil, err
	}

	tag, err := q.Exec(ctx,
		`UPDATE products
		 SET name = $3, description = $4, amount = $5, article = $6, price_cents = $7,
		     discount = $8, visible = $9, url = $10, updated_at = now()
		 WHERE id = $1 AND bot_id = $2`,
		id, botID, in.Name, in.Description, in.Amount, in.Article, cents, in.Discount, in.visible(), in.URL,
	)
	if err != nil {
		return nil, fmt.Errorf("updating product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProductNotFound
	}

	if err := s.setCategories(ctx, q, botID, id, in.CategoryIDs); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, q, botID, id)
}

// setCategories replaces the product's categories. Every id must belong to
// the same bot.
func (s *Store) setCategories(ctx context.Context, q database.Querier, botID, productID string, categoryIDs []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM product_categories WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("clearing product categories: %w", err)
	}
	if len(categoryIDs) == 0 {
		return nil
	}

	tag, err := q.Exec(ctx,
		`INSERT INTO product_categories (tenant_id, product_id, category_id)
		 SELECT current_setting('app.current_tenant_id', true)::UUID, $1, c.id
		 FROM categories c
		 WHERE c.bot_id = $2 AND c.id::text = ANY($3::TEXT[])`,
		productID, botID, categoryIDs,
	)
	if err != nil {
		return fmt.Errorf("setting product categories: %w", err)
	}
	if int(tag.RowsAffected()) != len(dedupe(categoryIDs)) {
		return ErrUnknownCategory
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, q database.Querier, botID, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM products WHERE id = $1 AND bot_id = $2`, id, botID)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, q database.Querier, botID, id string) (*Product, error) {
	rows, err := q.Query(ctx, selectProduct+` WHERE p.id::text = $1 AND p.bot_id = $2`, id, botID)
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ListProducts returns every product of the bot, hidden ones included.
func (s *Store) ListProducts(ctx context.Context, q database.Querier, botID string) ([]*Product, error) {
	rows, err := q.Query(ctx, selectProduct+` WHERE p.bot_id = $1 ORDER BY p.name, p.id`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListVisible returns the bot's visible products ordered by name, limited
// to one category when categoryID is set.
func (s *Store) ListVisible(ctx context.Context, q database.Querier, botID, categoryID string) ([]*Product, error) {
	rows, err := q.Query(ctx, selectProduct+`
		WHERE p.bot_id = $1 AND p.visible
		  AND ($2 = '' OR EXISTS (
		      SELECT 1 FROM product_categories pc WHERE pc.product_id = p.id AND pc.category_id::text = $2))
		ORDER BY p.name, p.id`,
		botID, categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing visible products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// IncrementLikes adds a like and returns the new total.
func (s *Store) IncrementLikes(ctx context.Context, q database.Querier, id string) (int, error) {
	return s.increment(ctx, q, "likes", id, 1)
}

func (s *Store) IncrementViews(ctx context.Context, q database.Querier, id string) (int, error) {
	return s.increment(ctx, q, "views_count", id, 1)
}

func (s *Store) IncrementAddToBasket(ctx context.Context, q database.Querier, id string) (int, error) {
	return s.increment(ctx, q, "add_to_basket_count", id, 1)
}

// IncrementAcquired adds n sold units to the product's counter.
func (s *Store) IncrementAcquired(ctx context.Context, q database.Querier, id string, n int) (int, error) {
	return s.increment(ctx, q, "acquired_count", id, n)
}

func (s *Store) increment(ctx context.Context, q database.Querier, column, id string, n int) (int, error) {
	var total int
	err := q.QueryRow(ctx,
		`UPDATE products SET `+column+` = `+column+` + $2 WHERE id = $1 RETURNING `+column,
		id, n,
	).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("incrementing %s: %w", column, err)
	}
	return total, nil
}

// AddPhoto attaches a photo. An empty URL stores NoImageURL; a main photo
// demotes the previous one.
func (s *Store) AddPhoto(ctx context.Context, q database.Querier, productID, imageURL string, isMain bool) (*Photo, error) {
	if strings.TrimSpace(imageURL) == "" {
		imageURL = NoImageURL
	}
	if isMain {
		if _, err := q.Exec(ctx, `UPDATE product_photos SET is_main = false WHERE product_id = $1`, productID); err != nil {
			return nil, fmt.Errorf("demoting main photo: %w", err)
		}
	}

	ph := Photo{ProductID: productID, ImageURL: imageURL, IsMain: isMain}
	err := q.QueryRow(ctx,
		`INSERT INTO product_photos (tenant_id, product_id, image_url, is_main)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3)
		 RETURNING id, created_at`,
		productID, imageURL, isMain,
	).Scan(&ph.ID, &ph.CreatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("adding photo: %w", err)
	}
	return &ph, nil
}

func (s *Store) ListPhotos(ctx context.Context, q database.Querier, productID string) ([]Photo, error) {
	rows, err := q.Query(ctx,
		`SELECT id, product_id, image_url, is_main, created_at
		 FROM product_photos WHERE product_id = $1
		 ORDER BY is_main DESC, created_at`, productID)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Photo])
}

func (s *Store) DeletePhoto(ctx context.Context, q database.Querier, productID, photoID string) error {
	tag, err := q.Exec(ctx, `DELETE FROM product_photos WHERE id = $1 AND product_id = $2`, photoID, productID)
	if err != nil {
		return fmt.Errorf("deleting photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPhotoNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.BotID, &p.Name, &p.Slug, &p.Description, &p.Amount, &p.Article, &p.PriceCents,
		&p.Discount, &p.Visible, &p.URL, &p.Likes, &p.ViewsCount, &p.AddToBasketCount, &p.AcquiredCount,
		&p.CategoryIDs, &p.Categories, &p.MainPhotoURL,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if p.MainPhotoURL == "" {
		p.MainPhotoURL = NoImageURL
	}
	return &p, err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
