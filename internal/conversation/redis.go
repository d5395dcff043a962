package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "chatbot:conversation"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps handles in Redis so they survive restarts and can be
// shared by several bot processes. Keys are "<prefix>:<user id>".
type RedisStore struct {
	*seeder
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	Prefix string
	// TTL expires idle handles; each hit refreshes it. Zero keeps handles
	// until cleared.
	TTL time.Duration
}

func NewRedis(creator Creator, rdb redis.Cmdable, ropts RedisOptions, opts Options) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("conversation: nil redis client")
	}
	s, err := newSeeder(creator, opts)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(strings.TrimSpace(ropts.Prefix), ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	ttl := ropts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{seeder: s, rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + ":" + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) get(ctx context.Context, userID int64, touch bool) (string, bool, error) {
	key := r.key(userID)
	h, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("conversation: redis get: %w", err)
	}
	if touch && r.ttl > 0 {
		if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
			r.log.Warn("conversation_ttl_refresh_failed", "user_id", userID, "error", err.Error())
		}
	}
	return h, true, nil
}

func (r *RedisStore) GetOrCreate(ctx context.Context, userID int64) (string, bool, error) {
	lookup := func(ctx context.Context) (string, bool, error) {
		return r.get(ctx, userID, true)
	}
	save := func(ctx context.Context, h string) (string, error) {
		ok, err := r.rdb.SetNX(ctx, r.key(userID), h, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("conversation: redis setnx: %w", err)
		}
		if ok {
			return h, nil
		}
		existing, found, err := r.get(ctx, userID, false)
		if err != nil {
			return "", err
		}
		if !found {
			// cleared between SETNX and GET; keep ours
			if err := r.rdb.Set(ctx, r.key(userID), h, r.ttl).Err(); err != nil {
				return "", fmt.Errorf("conversation: redis set: %w", err)
			}
			return h, nil
		}
		return existing, nil
	}
	return r.getOrCreate(ctx, userID, lookup, save)
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) (bool, error) {
	n, err := r.rdb.Del(ctx, r.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: redis del: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Peek(ctx context.Context, userID int64) (string, bool, error) {
	return r.get(ctx, userID, false)
}
