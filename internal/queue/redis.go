package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// RedisQueue keeps entries in a hash and their due times in a sorted set
// scored by unix milliseconds.
type RedisQueue struct {
	rdb        *redis.Client
	dueKey     string
	entriesKey string
}

func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "delivery"
	}
	return &RedisQueue{
		rdb:        rdb,
		dueKey:     prefix + ":retry:due",
		entriesKey: prefix + ":retry:entries",
	}
}

// NewRedisClient builds a client with bounded timeouts and checks it is reachable.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (q *RedisQueue) Put(ctx context.Context, e model.RetryEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.entriesKey, e.MessageID, b)
		pipe.ZAdd(ctx, q.dueKey, redis.Z{
			Score:  float64(e.NextRetryAt.UnixMilli()),
			Member: e.MessageID,
		})
		return nil
	})
	return err
}

func (q *RedisQueue) Get(ctx context.Context, messageID string) (model.RetryEntry, bool, error) {
	raw, err := q.rdb.HGet(ctx, q.entriesKey, messageID).Result()
	if errors.Is(err, redis.Nil) {
		return model.RetryEntry{}, false, nil
	}
	if err != nil {
		return model.RetryEntry{}, false, err
	}

	var e model.RetryEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return model.RetryEntry{}, false, fmt.Errorf("decode retry entry %s: %w", messageID, err)
	}
	return e, true, nil
}

func (q *RedisQueue) Remove(ctx context.Context, messageID string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.entriesKey, messageID)
		pipe.ZRem(ctx, q.dueKey, messageID)
		return nil
	})
	return err
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]model.RetryEntry, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}

	ids, err := q.rdb.ZRangeByScore(ctx, q.dueKey, by).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vals, err := q.rdb.HMGet(ctx, q.entriesKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.RetryEntry, 0, len(ids))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Due time without a body: a Remove raced the read.
			_ = q.rdb.ZRem(ctx, q.dueKey, ids[i]).Err()
			continue
		}
		var e model.RetryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode retry entry %s: %w", ids[i], err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.HLen(ctx, q.entriesKey).Result()
	return int(n), err
}
