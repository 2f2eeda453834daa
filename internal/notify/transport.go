// README: Driver transport: dedupe by idempotency key, then deliver over the hub.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/types"
)

var ErrNotConnected = errors.New("driver has no live connection")

// Deduper reports whether key is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}

type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl, prefix: "courier:notify:"}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
}

type Transport struct {
	hub    *Hub
	dedupe Deduper
	log    *slog.Logger
}

// NewTransport delivers through hub. dedupe may be nil.
func NewTransport(hub *Hub, dedupe Deduper, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{hub: hub, dedupe: dedupe, log: log}
}

// SendToDriver delivers event once per key. When the dedupe store is
// unreachable the message is still sent.
func (t *Transport) SendToDriver(ctx context.Context, driverID types.ID, event string, payload any, key string) error {
	if key != "" && t.dedupe != nil {
		first, err := t.dedupe.FirstSeen(ctx, key)
		switch {
		case err != nil:
			t.log.Warn("notify dedupe unavailable", "key", key, "error", err)
		case !first:
			t.log.Debug("notify duplicate suppressed", "key", key)
			return nil
		}
	}
	if n := t.hub.Send(driverID, Message{Event: event, Key: key, Payload: payload}); n == 0 {
		return ErrNotConnected
	}
	return nil
}
