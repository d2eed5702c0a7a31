package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobStore struct {
	claimBatches   [][]Job
	claimCalls     int
	recoveredAt    time.Time
	recoveredLimit int

	sentIDs   []uuid.UUID
	retries   []retryCall
	deadJobs  []deadCall
	callOrder []string
}

type retryCall struct {
	id          uuid.UUID
	nextAttempt time.Time
	lastError   string
}

type deadCall struct {
	id        uuid.UUID
	lastError string
}

func (f *fakeJobStore) ClaimPending(_ context.Context, _ database.Querier, _ time.Time, _ int) ([]Job, error) {
	f.callOrder = append(f.callOrder, "claim")
	if f.claimCalls >= len(f.claimBatches) {
		return nil, nil
	}
	batch := f.claimBatches[f.claimCalls]
	f.claimCalls++
	return batch, nil
}

func (f *fakeJobStore) MarkSent(_ context.Context, _ database.Querier, id uuid.UUID) error {
	f.sentIDs = append(f.sentIDs, id)
	return nil
}

func (f *fakeJobStore) MarkRetry(_ context.Context, _ database.Querier, id uuid.UUID, nextAttempt time.Time, lastError string) error {
	f.retries = append(f.retries, retryCall{id: id, nextAttempt: nextAttempt, lastError: lastError})
	return nil
}

func (f *fakeJobStore) MarkDead(_ context.Context, _ database.Querier, id uuid.UUID, lastError string) error {
	f.deadJobs = append(f.deadJobs, deadCall{id: id, lastError: lastError})
	return nil
}

func (f *fakeJobStore) RecoverStale(_ context.Context, _ database.Querier, staleBefore time.Time, limit int) ([]Job, error) {
	f.callOrder = append(f.callOrder, "recover")
	f.recoveredAt = staleBefore
	f.recoveredLimit = limit
	return nil, nil
}

type fakeSender struct {
	sendErr map[uuid.UUID]error
	sentIDs []uuid.UUID
}

func (f *fakeSender) Send(_ context.Context, job Job) error {
	f.sentIDs = append(f.sentIDs, job.ID)
	return f.sendErr[job.ID]
}

func TestDispatcher_SendsPendingJob(t *testing.T) {
	jobID := uuid.New()
	store := &fakeJobStore{claimBatches: [][]Job{{{ID: jobID, MaxAttempts: 5}}}}
	sender := &fakeSender{}

	d := NewDispatcher(store, sender, DispatcherConfig{ClaimBatchSize: 4})

	processed, err := d.DispatchOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []uuid.UUID{jobID}, sender.sentIDs)
	assert.Equal(t, []uuid.UUID{jobID}, store.sentIDs)
	assert.Empty(t, store.retries)
	assert.Empty(t, store.deadJobs)
}

func TestDispatcher_RetriesWithBoundedBackoff(t *testing.T) {
	jobID := uuid.New()
	fixedNow := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &fakeJobStore{claimBatches: [][]Job{{{ID: jobID, AttemptCount: 1, MaxAttempts: 5}}}}
	sender := &fakeSender{sendErr: map[uuid.UUID]error{jobID: errors.New("telegram timeout")}}

	d := NewDispatcher(store, sender, DispatcherConfig{
		BaseRetryDelay: 10 * time.Second,
		MaxRetryDelay:  60 * time.Second,
		JitterFraction: 0.2,
	})
	d.now = func() time.Time { return fixedNow }
	d.jitter = func() float64 { return 0.5 }

	processed, err := d.DispatchOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, store.retries, 1)
	assert.Equal(t, "telegram timeout", store.retries[0].lastError)
	// second attempt: 10s * 2 * 1.1
	assert.Equal(t, fixedNow.Add(22*time.Second), store.retries[0].nextAttempt)
	assert.Empty(t, store.sentIDs)
}

func TestDispatcher_HonorsRetryAfter(t *testing.T) {
	jobID := uuid.New()
	fixedNow := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &fakeJobStore{claimBatches: [][]Job{{{ID: jobID, MaxAttempts: 5}}}}
	sender := &fakeSender{sendErr: map[uuid.UUID]error{
		jobID: NewRetryAfterError(errors.New("too many requests"), 90*time.Second),
	}}

	d := NewDispatcher(store, sender, DispatcherConfig{BaseRetryDelay: 5 * time.Second})
	d.now = func() time.Time { return fixedNow }

	_, err := d.DispatchOnce(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, store.retries, 1)
	assert.Equal(t, fixedNow.Add(90*time.Second), store.retries[0].nextAttempt)
}

func TestDispatcher_DeadLetters(t *testing.T) {
	exhausted, blocked := uuid.New(), uuid.New()
	store := &fakeJobStore{claimBatches: [][]Job{{
		{ID: exhausted, AttemptCount: 4, MaxAttempts: 5},
		{ID: blocked, AttemptCount: 0, MaxAttempts: 5},
	}}}
	sender := &fakeSender{sendErr: map[uuid.UUID]error{
		exhausted: errors.New("telegram unavailable"),
		blocked:   NewPermanentError(errors.New("bot was blocked by the user")),
	}}

	d := NewDispatcher(store, sender, DispatcherConfig{ClaimBatchSize: 2})

	processed, err := d.DispatchOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []deadCall{
		{id: exhausted, lastError: "telegram unavailable"},
		{id: blocked, lastError: "bot was blocked by the user"},
	}, store.deadJobs)
	assert.Empty(t, store.retries)
}

func TestDispatcher_RecoversStaleBeforeClaim(t *testing.T) {
	fixedNow := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	store := &fakeJobStore{}

	d := NewDispatcher(store, &fakeSender{}, DispatcherConfig{
		ClaimBatchSize:    3,
		RecoveryBatchSize: 7,
		LockTimeout:       45 * time.Second,
	})
	d.now = func() time.Time { return fixedNow }

	processed, err := d.DispatchOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, []string{"recover", "claim"}, store.callOrder)
	assert.Equal(t, fixedNow.Add(-45*time.Second), store.recoveredAt)
	assert.Equal(t, 7, store.recoveredLimit)
}

func TestDispatcher_RetryDelayIsCapped(t *testing.T) {
	d := NewDispatcher(&fakeJobStore{}, &fakeSender{}, DispatcherConfig{
		BaseRetryDelay: 5 * time.Second,
		MaxRetryDelay:  2 * time.Minute,
		JitterFraction: 1,
	})
	d.jitter = func() float64 { return 1 }

	assert.Equal(t, 10*time.Second, d.retryDelay(1))
	assert.Equal(t, 2*time.Minute, d.retryDelay(10))
}
