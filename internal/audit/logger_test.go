package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDB implements database.Querier for testing.
type mockDB struct {
	mu      sync.Mutex
	count   int
	rows    int
	tenants []string
}

func (m *mockDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.rows += len(args[0].([]string))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func (m *mockDB) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *mockDB) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows
}

func (m *mockDB) runner() TenantRunner {
	return func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error {
		m.mu.Lock()
		m.tenants = append(m.tenants, tenantID)
		m.mu.Unlock()
		return fn(ctx, m)
	}
}

func event(tenantID uuid.UUID, action string) Event {
	return Event{TenantID: tenantID, Action: action, Source: SourceAPI}
}

func TestAsyncLogger_FlushesOnInterval(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db.runner(), NewStore(), LoggerConfig{
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
	})
	defer logger.Close()

	logger.Log(context.Background(), event(uuid.New(), ActionBotCreated))

	assert.Eventually(t, func() bool { return db.insertCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAsyncLogger_FlushesOnBatchSize(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db.runner(), NewStore(), LoggerConfig{
		BatchSize:     3,
		FlushInterval: time.Hour,
	})
	defer logger.Close()

	tenantID := uuid.New()
	for range 3 {
		logger.Log(context.Background(), event(tenantID, ActionProductUpdated))
	}

	assert.Eventually(t, func() bool { return db.rowCount() == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, db.insertCount())
}

func TestAsyncLogger_CloseFlushesOneBatchPerTenant(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db.runner(), NewStore(), LoggerConfig{FlushInterval: time.Hour})

	tenantA, tenantB := uuid.New(), uuid.New()
	for _, tid := range []uuid.UUID{tenantA, tenantB, tenantA} {
		logger.Log(context.Background(), event(tid, ActionOrderAccepted))
	}

	require.NoError(t, logger.Close())
	assert.Equal(t, 2, db.insertCount())
	assert.Equal(t, 3, db.rowCount())
	assert.ElementsMatch(t, []string{tenantA.String(), tenantB.String()}, db.tenants)
}

func TestAsyncLogger_Drops(t *testing.T) {
	t.Run("no tenant", func(t *testing.T) {
		db := &mockDB{}
		logger := NewAsyncLogger(db.runner(), NewStore(), LoggerConfig{FlushInterval: time.Hour})

		logger.Log(context.Background(), Event{Action: ActionWebhookRejected})

		require.NoError(t, logger.Close())
		assert.Zero(t, db.insertCount())
	})

	t.Run("after close", func(t *testing.T) {
		db := &mockDB{}
		logger := NewAsyncLogger(db.runner(), NewStore(), LoggerConfig{})
		require.NoError(t, logger.Close())
		require.NoError(t, logger.Close())

		logger.Log(context.Background(), event(uuid.New(), ActionMailingSent))

		assert.Equal(t, uint64(1), logger.Dropped())
		assert.Zero(t, db.insertCount())
	})

	t.Run("buffer full", func(t *testing.T) {
		db := &mockDB{}
		logger := NewAsyncLogger(db.runner(), NewStore(), LoggerConfig{
			BufferSize:    2,
			BatchSize:     100,
			FlushInterval: time.Hour,
		})

		tenantID := uuid.New()
		for range 50 {
			logger.Log(context.Background(), event(tenantID, ActionMailingSent))
		}

		require.NoError(t, logger.Close())
		assert.Equal(t, 50, db.rowCount()+int(logger.Dropped()))
	})
}
