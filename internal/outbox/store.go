package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

var ErrJobNotFound = errors.New("outbox job not found")

const jobColumns = `id, tenant_id, bot_id::text, kind, chat_id, post_id::text, payload, status,
	attempt_count, max_attempts, next_attempt_at, locked_at, last_error, sent_at, created_at, updated_at`

// currentTenant limits worker queries to the connection's tenant even for
// roles that bypass row-level security.
const currentTenant = `tenant_id = current_setting('app.current_tenant_id', true)::UUID`

type Store struct {
	maxAttempts int
}

// NewStore creates a Store; maxAttempts is stamped on every new job.
func NewStore(maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{maxAttempts: maxAttempts}
}

func (s *Store) Enqueue(ctx context.Context, q database.Querier, job NewJob) (*Job, error) {
	payload, err := json.Marshal(job.Message)
	if err != nil {
		return nil, fmt.Errorf("encoding outbox payload: %w", err)
	}
	rows, err := q.Query(ctx,
		`INSERT INTO outbox_jobs (tenant_id, bot_id, kind, chat_id, post_id, payload, max_attempts)
		 VALUES (current_setting('app.current_tenant_id', true)::UUID, $1, $2, $3, $4, $5, $6)
		 RETURNING `+jobColumns,
		job.BotID, job.Kind, job.ChatID, job.PostID, payload, s.maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueueing outbox job: %w", err)
	}
	j, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Job])
	if err != nil {
		return nil, fmt.Errorf("enqueueing outbox job: %w", err)
	}
	return j, nil
}

// EnqueueFanout queues the same message for every chat in one statement and
// returns the number of jobs created.
func (s *Store) EnqueueFanout(ctx context.Context, q database.Querier, botID string, kind Kind, postID *string, chatIDs []int64, msg Message) (int64, error) {
	if len(chatIDs) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encoding outbox payload: %w", err)
	}
	tag, err := q.Exec(ctx,
		`INSERT INTO outbox_jobs (tenant_id, bot_id, kind, chat_id, post_id, payload, max_attempts)
		 SELECT current_setting('app.current_tenant_id', true)::UUID, $1, $2, chat_id, $4, $5, $6
		 FROM unnest($3::BIGINT[]) AS chat_id`,
		botID, kind, chatIDs, postID, payload, s.maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing outbox fanout: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimPending locks up to limit due jobs and moves them to sending.
func (s *Store) ClaimPending(ctx context.Context, q database.Querier, now time.Time, limit int) ([]Job, error) {
	rows, err := q.Query(ctx,
		`UPDATE outbox_jobs
		 SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		     SELECT id FROM outbox_jobs
		     WHERE `+currentTenant+` AND status = 'pending' AND next_attempt_at <= $1
		     ORDER BY next_attempt_at, created_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming outbox jobs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Job])
}

func (s *Store) MarkSent(ctx context.Context, q database.Querier, id uuid.UUID) error {
	return s.transition(ctx, q,
		`UPDATE outbox_jobs
		 SET status = 'sent', sent_at = now(), locked_at = NULL, last_error = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'sending'`, id)
}

func (s *Store) MarkRetry(ctx context.Context, q database.Querier, id uuid.UUID, nextAttempt time.Time, lastError string) error {
	return s.transition(ctx, q,
		`UPDATE outbox_jobs
		 SET status = 'pending', attempt_count = attempt_count + 1, next_attempt_at = $2,
		     last_error = $3, locked_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'sending'`, id, nextAttempt, lastError)
}

func (s *Store) MarkDead(ctx context.Context, q database.Querier, id uuid.UUID, lastError string) error {
	return s.transition(ctx, q,
		`UPDATE outbox_jobs
		 SET status = 'dead', attempt_count = attempt_count + 1, last_error = $2,
		     locked_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'sending'`, id, lastError)
}

func (s *Store) transition(ctx context.Context, q database.Querier, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating outbox job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RecoverStale returns jobs stuck in sending since before staleBefore to
// the pending state.
func (s *Store) RecoverStale(ctx context.Context, q database.Querier, staleBefore time.Time, limit int) ([]Job, error) {
	rows, err := q.Query(ctx,
		`UPDATE outbox_jobs
		 SET status = 'pending', locked_at = NULL, next_attempt_at = now(), updated_at = now()
		 WHERE id IN (
		     SELECT id FROM outbox_jobs
		     WHERE `+currentTenant+` AND status = 'sending' AND locked_at < $1
		     ORDER BY locked_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		staleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recovering stale outbox jobs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Job])
}

// CountByStatus reports the job counts of a post, keyed by status.
func (s *Store) CountByStatus(ctx context.Context, q database.Querier, postID string) (map[Status]int, error) {
	rows, err := q.Query(ctx,
		`SELECT status, count(*) FROM outbox_jobs WHERE post_id = $1 GROUP BY status`, postID)
	if err != nil {
		return nil, fmt.Errorf("counting outbox jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning outbox count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CancelPending dead-letters the jobs of a post that were not sent yet.
func (s *Store) CancelPending(ctx context.Context, q database.Querier, postID, reason string) (int64, error) {
	tag, err := q.Exec(ctx,
		`UPDATE outbox_jobs SET status = 'dead', last_error = $2, locked_at = NULL, updated_at = now()
		 WHERE post_id = $1 AND status = 'pending'`, postID, reason)
	if err != nil {
		return 0, fmt.Errorf("canceling outbox jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
