package mailings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

type chatLister interface {
	ActiveChatIDs(ctx context.Context, q database.Querier, botID string) ([]int64, error)
}

type jobQueue interface {
	EnqueueFanout(ctx context.Context, q database.Querier, botID string, kind outbox.Kind, postID *string, chatIDs []int64, msg outbox.Message) (int64, error)
	CountByStatus(ctx context.Context, q database.Querier, postID string) (map[outbox.Status]int, error)
}

// Scheduler fans due posts out to the outbox and marks them sent once
// every job has finished.
type Scheduler struct {
	store     *Store
	chats     chatLister
	queue     jobQueue
	auditLog  audit.Logger
	batchSize int
	now       func() time.Time
}

func NewScheduler(store *Store, chats chatLister, queue jobQueue, auditLog audit.Logger) *Scheduler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Scheduler{
		store:     store,
		chats:     chats,
		queue:     queue,
		auditLog:  auditLog,
		batchSize: 20,
		now:       time.Now,
	}
}

// RunOnce processes the tenant bound to q. It returns the number of posts
// fanned out.
func (s *Scheduler) RunOnce(ctx context.Context, q database.Querier, tenantID string) (int, error) {
	due, err := s.store.ClaimDue(ctx, q, s.now().UTC(), s.batchSize)
	if err != nil {
		return 0, err
	}

	for _, p := range due {
		chats, err := s.chats.ActiveChatIDs(ctx, q, p.BotID)
		if err != nil {
			return 0, fmt.Errorf("listing recipients of post %s: %w", p.ID, err)
		}
		postID := p.ID
		n, err := s.queue.EnqueueFanout(ctx, q, p.BotID, outbox.KindMailing, &postID, chats,
			outbox.Message{Text: p.Text, PhotoURL: p.PhotoURL})
		if err != nil {
			return 0, fmt.Errorf("fanning out post %s: %w", p.ID, err)
		}
		slog.Info("mailing fanned out", "post_id", p.ID, "bot_id", p.BotID, "recipients", n)
	}

	if err := s.finish(ctx, q, tenantID); err != nil {
		return len(due), err
	}
	return len(due), nil
}

func (s *Scheduler) finish(ctx context.Context, q database.Querier, tenantID string) error {
	sending, err := s.store.ListSending(ctx, q)
	if err != nil {
		return err
	}
	for _, p := range sending {
		counts, err := s.queue.CountByStatus(ctx, q, p.ID)
		if err != nil {
			return err
		}
		if counts[outbox.StatusPending]+counts[outbox.StatusSending] > 0 {
			continue
		}
		if err := s.store.SetStatus(ctx, q, p.ID, StatusSent); err != nil {
			return err
		}
		slog.Info("mailing sent", "post_id", p.ID, "delivered", counts[outbox.StatusSent], "failed", counts[outbox.StatusDead])

		evt := audit.Event{
			Action:       audit.ActionMailingSent,
			ResourceType: "post",
			ResourceID:   audit.ParseID(p.ID),
			Metadata:     map[string]any{"delivered": counts[outbox.StatusSent], "failed": counts[outbox.StatusDead]},
			Source:       audit.SourceSystem,
		}
		if tid := audit.ParseID(tenantID); tid != nil {
			evt.TenantID = *tid
		}
		s.auditLog.Log(ctx, evt)
	}
	return nil
}
