package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/agenthunt/internal/hunt"
)

const (
	sessionKeyPrefix = "hunt:session:"
	shareKeyPrefix   = "hunt:share:"
	maxTxRetries     = 5
)

// RedisStore keeps each snapshot in a hash with "revision", "data" and
// "updated_at" fields. Saves run in a WATCH transaction so a stale revision is dropped
// rather than written. It also implements ShareStore with native key TTLs.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func shareKey(token string) string { return shareKeyPrefix + token }

func (s *RedisStore) Save(ctx context.Context, st hunt.GameState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	key := sessionKey(st.SessionID)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "revision").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && cur > st.Revision {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key,
				"revision", st.Revision,
				"data", data,
				"updated_at", time.Now().UTC().Format(timeLayout),
			)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", st.SessionID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (hunt.GameState, error) {
	data, err := s.rdb.HGet(ctx, sessionKey(sessionID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return hunt.GameState{}, ErrNotFound
	}
	if err != nil {
		return hunt.GameState{}, fmt.Errorf("loading snapshot %s: %w", sessionID, err)
	}

	var st hunt.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return hunt.GameState{}, fmt.Errorf("decoding snapshot %s: %w", sessionID, err)
	}
	return st, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

// List scans every session hash. It walks the whole keyspace under the
// session prefix, which is fine at mission-control scale.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}

	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HMGet(ctx, k, "data", "updated_at")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make([]Summary, 0, len(keys))
	for _, cmd := range cmds {
		vals := cmd.Val()
		data, ok := vals[0].(string)
		if !ok {
			// Cleared between SCAN and HMGET.
			continue
		}
		var st hunt.GameState
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
		sm := summarize(st, time.Time{})
		sm.UpdatedAt, _ = vals[1].(string)
		out = append(out, sm)
	}
	return newestFirst(out, limit), nil
}

func (s *RedisStore) Put(ctx context.Context, token, sessionID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, shareKey(token), sessionID, ttl).Err()
}

func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	id, err := s.rdb.Get(ctx, shareKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return id, err
}
