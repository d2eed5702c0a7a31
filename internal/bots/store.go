package bots

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/slug"
	"github.com/shopfront-hq/shopfront/internal/reference"
)

const selectBot = `
	SELECT b.id, b.tenant_id, b.name, b.slug, b.description, b.token, b.owner_id::text,
	       b.telegram_operator, b.currency_id::text, COALESCE(c.symbol, ''), b.is_webhook_set,
	       b.welcome_text, b.terms_of_agreement,
	       ARRAY(SELECT country_id::text FROM bot_countries WHERE bot_id = b.id ORDER BY country_id),
	       ARRAY(SELECT delivery_type_id::text FROM bot_delivery_types WHERE bot_id = b.id ORDER BY delivery_type_id),
	       ARRAY(SELECT payment_type_id::text FROM bot_payment_types WHERE bot_id = b.id ORDER BY payment_type_id),
	       b.created_at, b.updated_at
	FROM bots b
	LEFT JOIN currencies c ON c.id = b.currency_id`

// Store persists bots. Every method except Route runs under a tenant
// connection; Route reads the bot_routes table which has no RLS policy.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Create inserts a bot with a slug derived from its name and registers the
// slug in bot_routes.
func (s *Store) Create(ctx context.Context, q database.Querier, in Input, ownerID string) (*Bot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !in.TermsOfAgreement {
		return nil, ErrTermsOfAgreement
	}

	botSlug, err := slug.Unique(ctx, in.Name, "bot", func(ctx context.Context, candidate string) (bool, error) {
		var taken bool
		err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bot_routes WHERE slug = $1)`, candidate).Scan(&taken)
		return taken, err
	})
	if err != nil {
		return nil, fmt.Errorf("generating bot slug: %w", err)
	}

	var owner *string
	if ownerID != "" {
		owner = &ownerID
	}

	var id string
	err = q.QueryRow(ctx,
		`INSERT INTO bots (tenant_id, name, slug, description, token, owner_id, telegram_operator,
		                   currency_id, welcome_text, terms_of_agreement)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		in.Name, botSlug, in.Description, in.Token, owner, in.TelegramOperator,
		in.CurrencyID, in.WelcomeText, in.TermsOfAgreement,
	).Scan(&id)
	if err != nil {
		return nil, mapWriteErr("creating bot", err)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO bot_routes (slug, bot_id, tenant_id)
		 VALUES ($1, $2, current_setting('app.current_tenant_id', true)::UUID)`,
		botSlug, id,
	)
	if err != nil {
		return nil, mapWriteErr("registering bot route", err)
	}

	if err := s.setRelations(ctx, q, id, in); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, q, id)
}

// Update rewrites the editable fields of a bot. The slug never changes so
// the webhook URL stays stable.
func (s *Store) Update(ctx context.Context, q database.Querier, id string, in Input) (*Bot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tag, err := q.Exec(ctx,
		`UPDATE bots
		 SET name = $2, description = $3, token = $4, telegram_operator = $5,
		     currency_id = $6, welcome_text = $7, updated_at = now()
		 WHERE id = $1`,
		id, in.Name, in.Description, in.Token, in.TelegramOperator, in.CurrencyID, in.WelcomeText,
	)
	if err != nil {
		return nil, mapWriteErr("updating bot", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrBotNotFound
	}

	if err := s.setRelations(ctx, q, id, in); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, q, id)
}

var relationTables = []struct {
	table  string
	column string
	ids    func(Input) []string
}{
	{"bot_countries", "country_id", func(in Input) []string { return in.CountryIDs }},
	{"bot_delivery_types", "delivery_type_id", func(in Input) []string { return in.DeliveryTypeIDs }},
	{"bot_payment_types", "payment_type_id", func(in Input) []string { return in.PaymentTypeIDs }},
}

func (s *Store) setRelations(ctx context.Context, q database.Querier, botID string, in Input) error {
	for _, rel := range relationTables {
		if _, err := q.Exec(ctx, `DELETE FROM `+rel.table+` WHERE bot_id = $1`, botID); err != nil {
			return fmt.Errorf("clearing %s: %w", rel.table, err)
		}
		ids := rel.ids(in)
		if len(ids) == 0 {
			continue
		}
		_, err := q.Exec(ctx,
			`INSERT INTO `+rel.table+` (tenant_id, bot_id, `+rel.column+`)
			 SELECT current_setting('app.current_tenant_id', true)::UUID, $1, ref
			 FROM unnest($2::UUID[]) AS ref
			 ON CONFLICT DO NOTHING`,
			botID, ids,
		)
		if err != nil {
			return mapWriteErr("setting "+rel.table, err)
		}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, q database.Querier, id string) (*Bot, error) {
	return s.getOne(ctx, q, selectBot+` WHERE b.id = $1`, id)
}

// GetBySlug returns the tenant's bot with the given slug.
func (s *Store) GetBySlug(ctx context.Context, q database.Querier, botSlug string) (*Bot, error) {
	return s.getOne(ctx, q, selectBot+` WHERE b.slug = $1`, botSlug)
}

func (s *Store) getOne(ctx context.Context, q database.Querier, sql, arg string) (*Bot, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying bot: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("querying bot: %w", err)
	}
	return b, nil
}

// List returns the tenant's bots ordered by name.
func (s *Store) List(ctx context.Context, q database.Querier) ([]*Bot, error) {
	rows, err := q.Query(ctx, selectBot+` ORDER BY b.name`)
	if err != nil {
		return nil, fmt.Errorf("listing bots: %w", err)
	}
	return pgx.CollectRows(rows, scanBot)
}

// Delete removes a bot and returns it so the caller can drop its webhook.
func (s *Store) Delete(ctx context.Context, q database.Querier, id string) (*Bot, error) {
	b, err := s.GetByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if _, err := q.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("deleting bot: %w", err)
	}
	return b, nil
}

func (s *Store) SetWebhookState(ctx context.Context, q database.Querier, id string, set bool) error {
	tag, err := q.Exec(ctx, `UPDATE bots SET is_webhook_set = $2, updated_at = now() WHERE id = $1`, id, set)
	if err != nil {
		return fmt.Errorf("updating webhook state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotFound
	}
	return nil
}

// Route resolves a webhook slug before any tenant context exists.
func (s *Store) Route(ctx context.Context, q database.Querier, botSlug string) (*Route, error) {
	r := Route{Slug: botSlug}
	err := q.QueryRow(ctx,
		`SELECT bot_id, tenant_id FROM bot_routes WHERE slug = $1`, botSlug,
	).Scan(&r.BotID, &r.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("resolving bot route: %w", err)
	}
	return &r, nil
}

// Countries lists the countries the bot delivers to.
func (s *Store) Countries(ctx context.Context, q database.Querier, botID string) ([]reference.Country, error) {
	rows, err := q.Query(ctx,
		`SELECT c.id, c.name, c.iso2, c.slug
		 FROM countries c JOIN bot_countries bc ON bc.country_id = c.id
		 WHERE bc.bot_id = $1
		 ORDER BY c.name`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing bot countries: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[reference.Country])
}

// DeliveryTypes lists the bot's active delivery types.
func (s *Store) DeliveryTypes(ctx context.Context, q database.Querier, botID string) ([]reference.DeliveryType, error) {
	rows, err := q.Query(ctx,
		`SELECT d.id, d.name, d.country_id::text, d.is_active
		 FROM delivery_types d JOIN bot_delivery_types bd ON bd.delivery_type_id = d.id
		 WHERE bd.bot_id = $1 AND d.is_active
		 ORDER BY d.name`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing bot delivery types: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[reference.DeliveryType])
}

func (s *Store) PaymentTypes(ctx context.Context, q database.Querier, botID string) ([]reference.PaymentType, error) {
	rows, err := q.Query(ctx,
		`SELECT p.id, p.name, p.slug
		 FROM payment_types p JOIN bot_payment_types bp ON bp.payment_type_id = p.id
		 WHERE bp.bot_id = $1
		 ORDER BY p.name`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing bot payment types: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[reference.PaymentType])
}

func scanBot(row pgx.CollectableRow) (*Bot, error) {
	var b Bot
	err := row.Scan(
		&b.ID, &b.TenantID, &b.Name, &b.Slug, &b.Description, &b.Token, &b.OwnerID,
		&b.TelegramOperator, &b.CurrencyID, &b.CurrencySymbol, &b.IsWebhookSet,
		&b.WelcomeText, &b.TermsOfAgreement,
		&b.CountryIDs, &b.DeliveryTypeIDs, &b.PaymentTypeIDs,
		&b.CreatedAt, &b.UpdatedAt,
	)
	return &b, err
}

func mapWriteErr(op string, err error) error {
	if database.IsUniqueViolation(err) {
		switch database.ConstraintName(err) {
		case "bots_token_key":
			return ErrTokenTaken
		default:
			return ErrNameTaken
		}
	}
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", ErrInvalidReference, database.ConstraintName(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
