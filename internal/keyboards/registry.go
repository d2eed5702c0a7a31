package keyboards

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCallbackNotFound = errors.New("callback not found or expired")
	ErrKeyCollision     = errors.New("could not allocate a free callback key")
)

const (
	keyPrefix      = "shopfront:cb:"
	keyBytes       = 8
	maxPutAttempts = 5
)

// Registry stores callback payloads under short random keys. Telegram limits
// callback_data to 64 bytes, so buttons carry only the key.
type Registry struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	newKey func() (string, error)
}

// NewRegistry creates a registry whose keys expire after ttl.
func NewRegistry(rdb redis.Cmdable, ttl time.Duration) *Registry {
	return &Registry{rdb: rdb, ttl: ttl, newKey: randomKey}
}

// Put stores cb under a fresh key and returns the key.
func (r *Registry) Put(ctx context.Context, cb Callback) (string, error) {
	payload, err := json.Marshal(cb)
	if err != nil {
		return "", fmt.Errorf("encoding callback: %w", err)
	}

	for range maxPutAttempts {
		key, err := r.newKey()
		if err != nil {
			return "", fmt.Errorf("generating callback key: %w", err)
		}
		ok, err := r.rdb.SetNX(ctx, keyPrefix+key, payload, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("storing callback: %w", err)
		}
		if ok {
			return key, nil
		}
	}
	return "", ErrKeyCollision
}

// Take returns the callback stored under key and deletes it, so every
// button press is handled once.
func (r *Registry) Take(ctx context.Context, key string) (Callback, error) {
	raw, err := r.rdb.GetDel(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Callback{}, ErrCallbackNotFound
		}
		return Callback{}, fmt.Errorf("reading callback: %w", err)
	}

	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return Callback{}, fmt.Errorf("decoding callback: %w", err)
	}
	return cb, nil
}

func randomKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
