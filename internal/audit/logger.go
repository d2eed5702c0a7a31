package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// TenantRunner runs fn with the RLS tenant set, e.g. database.WithTenantTx
// bound to a pool.
type TenantRunner func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error

// LoggerConfig configures the async audit logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	Logger        *slog.Logger
}

func (c *LoggerConfig) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// AsyncLogger queues events and writes them in the background, grouped by
// tenant. Log never blocks the request path.
type AsyncLogger struct {
	queue   chan Event
	store   *Store
	run     TenantRunner
	cfg     LoggerConfig
	dropped atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewAsyncLogger(run TenantRunner, store *Store, cfg LoggerConfig) *AsyncLogger {
	cfg.applyDefaults()
	l := &AsyncLogger{
		queue: make(chan Event, cfg.BufferSize),
		store: store,
		run:   run,
		cfg:   cfg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.loop()
	return l
}

// Log enqueues event. Events without a tenant, events arriving after Close
// and events that do not fit the buffer are dropped.
func (l *AsyncLogger) Log(_ context.Context, event Event) {
	if event.TenantID == uuid.Nil {
		l.cfg.Logger.Debug("audit event without tenant dropped", "action", event.Action)
		return
	}
	select {
	case <-l.stop:
		l.dropped.Add(1)
		return
	default:
	}
	select {
	case l.queue <- event:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.cfg.Logger.Warn("audit buffer full, dropping events", "action", event.Action, "dropped_total", n)
		}
	}
}

// Dropped reports how many events were discarded since start.
func (l *AsyncLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close writes everything still queued and stops the background loop. It
// is safe to call more than once.
func (l *AsyncLogger) Close() error {
	l.closeOnce.Do(func() { close(l.stop) })
	<-l.done
	return nil
}

// pending holds queued events per tenant until the next flush.
type pending struct {
	byTenant map[uuid.UUID][]Event
	n        int
}

func (p *pending) add(e Event) {
	if p.byTenant == nil {
		p.byTenant = make(map[uuid.UUID][]Event)
	}
	p.byTenant[e.TenantID] = append(p.byTenant[e.TenantID], e)
	p.n++
}

func (l *AsyncLogger) loop() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	var p pending
	for {
		select {
		case e := <-l.queue:
			p.add(e)
			if p.n >= l.cfg.BatchSize {
				l.flush(&p)
			}
		case <-ticker.C:
			l.flush(&p)
		case <-l.stop:
			for {
				select {
				case e := <-l.queue:
					p.add(e)
				default:
					l.flush(&p)
					return
				}
			}
		}
	}
}

// flush writes one batch per tenant, each under that tenant's RLS context,
// and resets p.
func (l *AsyncLogger) flush(p *pending) {
	if p.n == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.FlushTimeout)
	defer cancel()

	for tenantID, events := range p.byTenant {
		err := l.run(ctx, tenantID.String(), func(ctx context.Context, q database.Querier) error {
			return l.store.InsertBatch(ctx, q, events)
		})
		if err != nil {
			l.cfg.Logger.Error("audit flush failed", "error", err, "tenant_id", tenantID, "count", len(events))
		}
	}
	*p = pending{}
}
