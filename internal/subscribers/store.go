package subscribers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

const subscriberColumns = `id, bot_id, chat_id, name, username, info, avatar, is_active, is_admin,
	banned_at, created_at, updated_at`

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Upsert creates or refreshes the subscriber for a Telegram profile. A
// returning subscriber becomes active again unless banned.
func (s *Store) Upsert(ctx context.Context, q database.Querier, botID, operator string, p Profile) (*Subscriber, error) {
	rows, err := q.Query(ctx,
		`INSERT INTO subscribers (tenant_id, bot_id, chat_id, name, username, is_admin)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3, $4, $5)
		 ON CONFLICT (bot_id, chat_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     username = EXCLUDED.username,
		     is_admin = EXCLUDED.is_admin,
		     is_active = subscribers.banned_at IS NULL,
		     updated_at = now()
		 RETURNING `+subscriberColumns,
		botID, p.ChatID, p.Name, p.Username, p.IsOperator(operator),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting subscriber: %w", err)
	}
	sub, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Subscriber])
	if err != nil {
		return nil, fmt.Errorf("upserting subscriber: %w", err)
	}
	return sub, nil
}

// List returns the bot's subscribers, admins first, then active ones.
func (s *Store) List(ctx context.Context, q database.Querier, botID string) ([]Subscriber, error) {
	rows, err := q.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers
		 WHERE bot_id = $1
		 ORDER BY is_admin DESC, is_active DESC, created_at`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Subscriber])
}

func (s *Store) Get(ctx context.Context, q database.Querier, botID, id string) (*Subscriber, error) {
	rows, err := q.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id::text = $1 AND bot_id = $2`, id, botID)
	if err != nil {
		return nil, fmt.Errorf("getting subscriber: %w", err)
	}
	return collectOne(rows)
}

// Ban blocks the subscriber from the shop.
func (s *Store) Ban(ctx context.Context, q database.Querier, botID, id string) (*Subscriber, error) {
	rows, err := q.Query(ctx,
		`UPDATE subscribers
		 SET banned_at = COALESCE(banned_at, now()), is_active = false, updated_at = now()
		 WHERE id::text = $1 AND bot_id = $2
		 RETURNING `+subscriberColumns, id, botID)
	if err != nil {
		return nil, fmt.Errorf("banning subscriber: %w", err)
	}
	return collectOne(rows)
}

func (s *Store) Unban(ctx context.Context, q database.Querier, botID, id string) (*Subscriber, error) {
	rows, err := q.Query(ctx,
		`UPDATE subscribers
		 SET banned_at = NULL, is_active = true, updated_at = now()
		 WHERE id::text = $1 AND bot_id = $2
		 RETURNING `+subscriberColumns, id, botID)
	if err != nil {
		return nil, fmt.Errorf("unbanning subscriber: %w", err)
	}
	return collectOne(rows)
}

// Deactivate marks a chat inactive, for example after the user blocked the
// bot. Unknown chats are ignored.
func (s *Store) Deactivate(ctx context.Context, q database.Querier, botID string, chatID int64) error {
	_, err := q.Exec(ctx,
		`UPDATE subscribers SET is_active = false, updated_at = now() WHERE bot_id = $1 AND chat_id = $2`,
		botID, chatID)
	if err != nil {
		return fmt.Errorf("deactivating subscriber: %w", err)
	}
	return nil
}

// ActiveChatIDs returns the chats a mailing is delivered to.
func (s *Store) ActiveChatIDs(ctx context.Context, q database.Querier, botID string) ([]int64, error) {
	rows, err := q.Query(ctx,
		`SELECT chat_id FROM subscribers
		 WHERE bot_id = $1 AND is_active AND banned_at IS NULL
		 ORDER BY chat_id`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing active chats: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func collectOne(rows pgx.Rows) (*Subscriber, error) {
	sub, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Subscriber])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("reading subscriber: %w", err)
	}
	return sub, nil
}
