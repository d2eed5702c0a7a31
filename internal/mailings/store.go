package mailings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

const postColumns = `id, bot_id, text, photo_url, send_time, status, created_at, updated_at`

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Create(ctx context.Context, q database.Querier, botID string, in Input) (*Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx,
		`INSERT INTO posts (tenant_id, bot_id, text, photo_url, send_time, status)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3, $4, $5)
		 RETURNING `+postColumns,
		botID, in.Text, in.PhotoURL, in.SendTime, in.status(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}
	return collectPost(rows)
}

// Update rewrites a draft or scheduled post.
func (s *Store) Update(ctx context.Context, q database.Querier, botID, id string, in Input) (*Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx,
		`UPDATE posts SET text = $3, photo_url = $4, send_time = $5, status = $6, updated_at = now()
		 WHERE id::text = $1 AND bot_id = $2 AND status IN ('draft', 'scheduled')
		 RETURNING `+postColumns,
		id, botID, in.Text, in.PhotoURL, in.SendTime, in.status(),
	)
	if err != nil {
		return nil, fmt.Errorf("updating post: %w", err)
	}
	p, err := collectPost(rows)
	if errors.Is(err, ErrPostNotFound) {
		return nil, s.editMiss(ctx, q, botID, id)
	}
	return p, err
}

// SendNow schedules a draft or scheduled post for immediate delivery.
func (s *Store) SendNow(ctx context.Context, q database.Querier, botID, id string) (*Post, error) {
	rows, err := q.Query(ctx,
		`UPDATE posts SET status = 'scheduled', send_time = now(), updated_at = now()
		 WHERE id::text = $1 AND bot_id = $2 AND status IN ('draft', 'scheduled')
		 RETURNING `+postColumns, id, botID)
	if err != nil {
		return nil, fmt.Errorf("scheduling post: %w", err)
	}
	p, err := collectPost(rows)
	if errors.Is(err, ErrPostNotFound) {
		return nil, s.editMiss(ctx, q, botID, id)
	}
	return p, err
}

func (s *Store) editMiss(ctx context.Context, q database.Querier, botID, id string) error {
	if _, err := s.Get(ctx, q, botID, id); err != nil {
		return err
	}
	return ErrNotEditable
}

func (s *Store) Delete(ctx context.Context, q database.Querier, botID, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM posts WHERE id::text = $1 AND bot_id = $2`, id, botID)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q database.Querier, botID, id string) (*Post, error) {
	rows, err := q.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id::text = $1 AND bot_id = $2`, id, botID)
	if err != nil {
		return nil, fmt.Errorf("getting post: %w", err)
	}
	return collectPost(rows)
}

// List returns the bot's posts, newest first.
func (s *Store) List(ctx context.Context, q database.Querier, botID string) ([]Post, error) {
	rows, err := q.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE bot_id = $1 ORDER BY created_at DESC`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Post])
}

// ClaimDue moves scheduled posts whose send time has come to sending and
// returns them.
func (s *Store) ClaimDue(ctx context.Context, q database.Querier, now time.Time, limit int) ([]Post, error) {
	rows, err := q.Query(ctx,
		`UPDATE posts SET status = 'sending', updated_at = now()
		 WHERE id IN (
		     SELECT id FROM posts
		     WHERE tenant_id = current_setting('app.current_tenant_id', true)::UUID
		       AND status = 'scheduled' AND send_time <= $1
		     ORDER BY send_time
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+postColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming due posts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Post])
}

// ListSending returns the posts whose fan-out is still in flight.
func (s *Store) ListSending(ctx context.Context, q database.Querier) ([]Post, error) {
	rows, err := q.Query(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE tenant_id = current_setting('app.current_tenant_id', true)::UUID AND status = 'sending'
		 ORDER BY send_time`)
	if err != nil {
		return nil, fmt.Errorf("listing sending posts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Post])
}

func (s *Store) SetStatus(ctx context.Context, q database.Querier, id string, status Status) error {
	tag, err := q.Exec(ctx, `UPDATE posts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("updating post status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// CreateSentMessage records a delivered post message. A repeated delivery
// to the same chat keeps the latest message id.
func (s *Store) CreateSentMessage(ctx context.Context, q database.Querier, postID string, chatID int64, messageID int) (*SentMessage, error) {
	m := SentMessage{PostID: postID, ChatID: chatID, MessageID: messageID}
	err := q.QueryRow(ctx,
		`INSERT INTO sent_messages (tenant_id, post_id, chat_id, message_id)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3)
		 ON CONFLICT (post_id, chat_id) DO UPDATE SET message_id = EXCLUDED.message_id
		 RETURNING id, created_at`,
		postID, chatID, messageID,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("recording sent message: %w", err)
	}
	return &m, nil
}

func (s *Store) ListSentMessages(ctx context.Context, q database.Querier, postID string) ([]SentMessage, error) {
	rows, err := q.Query(ctx,
		`SELECT id, post_id, chat_id, message_id, created_at FROM sent_messages
		 WHERE post_id = $1 ORDER BY chat_id`, postID)
	if err != nil {
		return nil, fmt.Errorf("listing sent messages: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[SentMessage])
}

func (s *Store) DeleteSentMessage(ctx context.Context, q database.Querier, id string) error {
	if _, err := q.Exec(ctx, `DELETE FROM sent_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting sent message: %w", err)
	}
	return nil
}

func collectPost(rows pgx.Rows) (*Post, error) {
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Post])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("reading post: %w", err)
	}
	return p, nil
}
