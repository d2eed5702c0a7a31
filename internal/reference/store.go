package reference

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// Store reads and writes the global reference tables. They have no RLS
// policy, so any Querier works.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) ListCountries(ctx context.Context, q database.Querier) ([]Country, error) {
	rows, err := q.Query(ctx, `SELECT id, name, iso2, slug FROM countries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing countries: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Country])
}

func (s *Store) CreateCountry(ctx context.Context, q database.Querier, c Country) (*Country, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	err := q.QueryRow(ctx,
		`INSERT INTO countries (name, iso2, slug) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.ISO2, c.Slug,
	).Scan(&c.ID)
	if err != nil {
		return nil, mapWriteErr("creating country", err)
	}
	return &c, nil
}

func (s *Store) ListDeliveryTypes(ctx context.Context, q database.Querier) ([]DeliveryType, error) {
	rows, err := q.Query(ctx,
		`SELECT id, name, country_id::text, is_active FROM delivery_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing delivery types: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[DeliveryType])
}

func (s *Store) CreateDeliveryType(ctx context.Context, q database.Querier, d DeliveryType) (*DeliveryType, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	err := q.QueryRow(ctx,
		`INSERT INTO delivery_types (name, country_id, is_active) VALUES ($1, $2, $3) RETURNING id`,
		d.Name, d.CountryID, d.IsActive,
	).Scan(&d.ID)
	if err != nil {
		return nil, mapWriteErr("creating delivery type", err)
	}
	return &d, nil
}

func (s *Store) ListPaymentTypes(ctx context.Context, q database.Querier) ([]PaymentType, error) {
	rows, err := q.Query(ctx, `SELECT id, name, slug FROM payment_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing payment types: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[PaymentType])
}

func (s *Store) CreatePaymentType(ctx context.Context, q database.Querier, p PaymentType) (*PaymentType, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	err := q.QueryRow(ctx,
		`INSERT INTO payment_types (name, slug) VALUES ($1, $2) RETURNING id`,
		p.Name, p.Slug,
	).Scan(&p.ID)
	if err != nil {
		return nil, mapWriteErr("creating payment type", err)
	}
	return &p, nil
}

func (s *Store) ListCurrencies(ctx context.Context, q database.Querier) ([]Currency, error) {
	rows, err := q.Query(ctx,
		`SELECT id, name, symbol, country_id::text FROM currencies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing currencies: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Currency])
}

func (s *Store) CreateCurrency(ctx context.Context, q database.Querier, c Currency) (*Currency, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	err := q.QueryRow(ctx,
		`INSERT INTO currencies (name, symbol, country_id) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.Symbol, c.CountryID,
	).Scan(&c.ID)
	if err != nil {
		return nil, mapWriteErr("creating currency", err)
	}
	return &c, nil
}

var deletable = map[string]string{
	"countries":      "DELETE FROM countries WHERE id = $1",
	"delivery-types": "DELETE FROM delivery_types WHERE id = $1",
	"payment-types":  "DELETE FROM payment_types WHERE id = $1",
	"currencies":     "DELETE FROM currencies WHERE id = $1",
}

// Delete removes one record of the given kind ("countries", "delivery-types",
// "payment-types" or "currencies").
func (s *Store) Delete(ctx context.Context, q database.Querier, kind, id string) error {
	stmt, ok := deletable[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	tag, err := q.Exec(ctx, stmt, id)
	if err != nil {
		return mapWriteErr("deleting "+kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteErr(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, database.ConstraintName(err))
	}
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", ErrInvalidInput, database.ConstraintName(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
