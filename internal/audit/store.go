package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// Store persists audit events. Calls run inside a tenant connection, so
// RLS limits them to that tenant.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// insertSQL writes a whole batch with one statement: every column travels
// as an array and unnest zips them back into rows.
const insertSQL = `INSERT INTO audit_events (tenant_id, user_id, action, resource_type, resource_id, metadata, source)
SELECT t, u, a, NULLIF(rt, ''), r, m::jsonb, s
FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::uuid[], $6::text[], $7::text[])
	AS b(t, u, a, rt, r, m, s)`

// batchColumns is a batch of events split by column.
type batchColumns struct {
	tenants   []string
	users     []*string
	actions   []string
	types     []string
	resources []*string
	metadata  []*string
	sources   []string
}

func columnsOf(events []Event) (batchColumns, error) {
	var c batchColumns
	for _, e := range events {
		var meta *string
		if e.Metadata != nil {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return batchColumns{}, fmt.Errorf("marshaling metadata for %s: %w", e.Action, err)
			}
			s := string(raw)
			meta = &s
		}
		source := e.Source
		if source == "" {
			source = SourceAPI
		}

		c.tenants = append(c.tenants, e.TenantID.String())
		c.users = append(c.users, uuidText(e.UserID))
		c.actions = append(c.actions, e.Action)
		c.types = append(c.types, e.ResourceType)
		c.resources = append(c.resources, uuidText(e.ResourceID))
		c.metadata = append(c.metadata, meta)
		c.sources = append(c.sources, source)
	}
	return c, nil
}

func (c batchColumns) args() []any {
	return []any{c.tenants, c.users, c.actions, c.types, c.resources, c.metadata, c.sources}
}

func uuidText(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// InsertBatch writes events in one round trip. Every event must belong to
// the tenant of q.
func (s *Store) InsertBatch(ctx context.Context, q database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	cols, err := columnsOf(events)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, insertSQL, cols.args()...); err != nil {
		return fmt.Errorf("inserting %d audit events: %w", len(events), err)
	}
	return nil
}

// ListEventsParams filters ListEvents. Nil fields are not filtered on.
type ListEventsParams struct {
	TenantID     uuid.UUID
	Action       *string
	ResourceType *string
	UserID       *uuid.UUID
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// clauses accumulates WHERE conditions with positional arguments.
type clauses struct {
	conds []string
	args  []any
}

func (c *clauses) add(cond string, arg any) {
	c.args = append(c.args, arg)
	c.conds = append(c.conds, fmt.Sprintf(cond, len(c.args)))
}

func addIf[T any](c *clauses, cond string, v *T) {
	if v != nil {
		c.add(cond, *v)
	}
}

func buildListQuery(p ListEventsParams) (string, []any) {
	var c clauses
	c.add("tenant_id = $%d", p.TenantID)
	addIf(&c, "action = $%d", p.Action)
	addIf(&c, "resource_type = $%d", p.ResourceType)
	addIf(&c, "user_id = $%d", p.UserID)
	addIf(&c, "source = $%d", p.Source)
	addIf(&c, "created_at > $%d", p.After)
	addIf(&c, "created_at < $%d", p.Before)
	c.args = append(c.args, p.Limit)

	sql := `SELECT id, tenant_id, user_id, action, resource_type, resource_id, metadata, source, created_at
FROM audit_events
WHERE ` + strings.Join(c.conds, " AND ") + fmt.Sprintf(`
ORDER BY created_at DESC, id DESC
LIMIT $%d`, len(c.args))
	return sql, c.args
}

// Record is a stored audit event.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	UserID       *uuid.UUID      `json:"user_id"`
	Action       string          `json:"action"`
	ResourceType *string         `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListEvents returns the newest events matching p.
func (s *Store) ListEvents(ctx context.Context, q database.Querier, p ListEventsParams) ([]Record, error) {
	sql, args := buildListQuery(p)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Record])
	if err != nil {
		return nil, fmt.Errorf("scanning audit events: %w", err)
	}
	return records, nil
}
