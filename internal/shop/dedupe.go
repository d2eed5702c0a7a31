package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "shopfront:update:"

// Deduper remembers processed update ids so Telegram redeliveries are
// handled once.
type Deduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// FirstSeen records the update and reports whether it was not seen before.
func (d *Deduper) FirstSeen(ctx context.Context, botID string, updateID int) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf("%s%s:%d", dedupePrefix, botID, updateID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording update: %w", err)
	}
	return ok, nil
}
