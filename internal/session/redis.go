package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "parkpulse:session:"

// maxTxRetries bounds optimistic retries when a watched key changes
// between read and write.
const maxTxRetries = 5

// RedisStore keeps sessions as JSON values without expiry, so state
// survives restarts and is visible to every replica. Locks only serialize
// messages within one process; replicas need session-affine routing for a
// session's messages to stay ordered.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis:// URL and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(ctx context.Context, id string) (State, error) {
	key := redisKeyPrefix + id
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent first write from being overwritten.
		if err := r.client.SetNX(ctx, key, "{}", 0).Err(); err != nil {
			return State{}, fmt.Errorf("failed to create session: %w", err)
		}
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeState(raw)
}

func (r *RedisStore) Set(ctx context.Context, id string, patch Patch) error {
	return r.update(ctx, id, func(st *State) error {
		return st.apply(patch)
	})
}

func (r *RedisStore) Clear(ctx context.Context, id string, keys ...Key) error {
	return r.update(ctx, id, func(st *State) error {
		st.clear(keys)
		return nil
	})
}

func (r *RedisStore) update(ctx context.Context, id string, fn func(*State) error) error {
	key := redisKeyPrefix + id
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		st, err := decodeState(raw)
		if err != nil {
			return err
		}
		if err := fn(&st); err != nil {
			return err
		}
		encoded, err := json.Marshal(st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrConflictingPhase) {
				return err
			}
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to update session %s: too much contention", id)
}

func decodeState(raw []byte) (State, error) {
	var st State
	if len(raw) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return st, nil
}
