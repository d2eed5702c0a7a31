package outbox

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// Sender delivers a claimed job.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

type jobStore interface {
	ClaimPending(ctx context.Context, q database.Querier, now time.Time, limit int) ([]Job, error)
	MarkSent(ctx context.Context, q database.Querier, id uuid.UUID) error
	MarkRetry(ctx context.Context, q database.Querier, id uuid.UUID, nextAttempt time.Time, lastError string) error
	MarkDead(ctx context.Context, q database.Querier, id uuid.UUID, lastError string) error
	RecoverStale(ctx context.Context, q database.Querier, staleBefore time.Time, limit int) ([]Job, error)
}

type DispatcherConfig struct {
	ClaimBatchSize    int
	RecoveryBatchSize int
	LockTimeout       time.Duration
	MaxAttempts       int
	BaseRetryDelay    time.Duration
	MaxRetryDelay     time.Duration
	JitterFraction    float64
}

// Dispatcher drains due jobs of one tenant per DispatchOnce call.
type Dispatcher struct {
	store  jobStore
	sender Sender
	cfg    DispatcherConfig
	now    func() time.Time
	jitter func() float64
}

func NewDispatcher(store jobStore, sender Sender, cfg DispatcherConfig) *Dispatcher {
	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = 10
	}
	if cfg.RecoveryBatchSize <= 0 {
		cfg.RecoveryBatchSize = cfg.ClaimBatchSize
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 5 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 2 * time.Minute
	}
	cfg.JitterFraction = min(max(cfg.JitterFraction, 0), 1)

	return &Dispatcher{
		store:  store,
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		jitter: cryptoRandomUnitFloat64,
	}
}

// DispatchOnce recovers stale locks, then claims and sends due jobs until
// none are left. It returns the number of jobs it moved to a new state.
func (d *Dispatcher) DispatchOnce(ctx context.Context, q database.Querier) (int, error) {
	now := d.now().UTC()
	if _, err := d.store.RecoverStale(ctx, q, now.Add(-d.cfg.LockTimeout), d.cfg.RecoveryBatchSize); err != nil {
		return 0, fmt.Errorf("recovering stale outbox jobs: %w", err)
	}

	processed := 0
	for {
		claimed, err := d.store.ClaimPending(ctx, q, now, d.cfg.ClaimBatchSize)
		if err != nil {
			return processed, fmt.Errorf("claiming pending outbox jobs: %w", err)
		}
		if len(claimed) == 0 {
			return processed, nil
		}

		for _, job := range claimed {
			if err := d.apply(ctx, q, now, job); err != nil {
				return processed, err
			}
			processed++
		}
	}
}

func (d *Dispatcher) apply(ctx context.Context, q database.Querier, now time.Time, job Job) error {
	sendErr := d.sender.Send(ctx, job)
	if sendErr == nil {
		if err := d.store.MarkSent(ctx, q, job.ID); err != nil {
			return fmt.Errorf("marking outbox sent: %w", err)
		}
		return nil
	}

	errText := strings.TrimSpace(sendErr.Error())
	if errText == "" {
		errText = "telegram send failed"
	}

	attemptsAfter := job.AttemptCount + 1
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.cfg.MaxAttempts
	}

	if IsPermanentError(sendErr) || attemptsAfter >= maxAttempts {
		if err := d.store.MarkDead(ctx, q, job.ID, errText); err != nil {
			return fmt.Errorf("marking outbox dead: %w", err)
		}
		return nil
	}

	delay := d.retryDelay(attemptsAfter)
	if hint, ok := RetryAfterHint(sendErr); ok && hint > delay {
		delay = hint
	}
	if err := d.store.MarkRetry(ctx, q, job.ID, now.Add(delay), errText); err != nil {
		return fmt.Errorf("marking outbox retry: %w", err)
	}
	return nil
}

func (d *Dispatcher) retryDelay(attemptsAfterFailure int) time.Duration {
	if attemptsAfterFailure <= 0 {
		attemptsAfterFailure = 1
	}

	multiplier := math.Pow(2, float64(attemptsAfterFailure-1))
	delay := time.Duration(float64(d.cfg.BaseRetryDelay) * multiplier)
	if delay > d.cfg.MaxRetryDelay {
		delay = d.cfg.MaxRetryDelay
	}

	if d.cfg.JitterFraction <= 0 {
		return delay
	}

	jitter := min(max(d.jitter(), 0), 1)
	jittered := time.Duration(float64(delay) * (1 + d.cfg.JitterFraction*jitter))
	return min(jittered, d.cfg.MaxRetryDelay)
}

func cryptoRandomUnitFloat64() float64 {
	var randomBytes [8]byte
	if _, err := cryptorand.Read(randomBytes[:]); err != nil {
		return 0
	}

	const mantissaDenominator = 1 << 53
	// top 53 bits map uniformly into [0, 1)
	mantissa := binary.BigEndian.Uint64(randomBytes[:]) >> 11
	return float64(mantissa) / float64(mantissaDenominator)
}
