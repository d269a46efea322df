package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amiskov/authgate/pkg/session"
)

const redisNS = "authgate:session:"

// RedisRepo stores records as JSON strings that expire with the session.
type RedisRepo struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisRepo(rdb *redis.Client) *RedisRepo {
	return &RedisRepo{
		rdb: rdb,
		now: time.Now,
	}
}

func (r *RedisRepo) Save(ctx context.Context, rec *session.Record) error {
	ttl := rec.Expiration.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, rec.ID)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sessions/redis: can't encode record, %w", err)
	}
	if err := r.rdb.Set(ctx, redisNS+rec.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("sessions/redis: set failed, %w", err)
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, sessionID string) (*session.Record, error) {
	payload, err := r.rdb.Get(ctx, redisNS+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("sessions/redis: get failed, %w", err)
	}
	rec := new(session.Record)
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("sessions/redis: can't decode record, %w", err)
	}
	return rec, nil
}

func (r *RedisRepo) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, redisNS+sessionID).Err(); err != nil {
		return fmt.Errorf("sessions/redis: del failed, %w", err)
	}
	return nil
}
