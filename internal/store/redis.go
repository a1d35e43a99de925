// internal/store/redis.go
//
// Redis-backed KV implementation. This is the production backend: the
// platform embedding the game exposes a Redis-compatible store with
// single-key get/set semantics, which is exactly the contract KV requires.
//
// Connection settings come from the environment:
//   REDIS_ADDR     host:port (default localhost:6379)
//   REDIS_PASSWORD optional
//   REDIS_DB       optional integer database index

package store

import (
	"context"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

type redisKV struct {
	rdb *redis.Client
}

// NewRedis connects to Redis using env configuration and verifies the
// connection with a ping before returning the KV.
func NewRedis(ctx context.Context) (KV, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Info().Str("value", v).Msg("invalid REDIS_DB, using database 0")
		} else {
			db = n
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	log.Info().Str("addr", addr).Msg("connected to redis")
	return &redisKV{rdb: rdb}, nil
}

// Get retrieves key; redis.Nil maps to "absent", not an error.
func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes key without expiry; game records live for the life of a post.
func (r *redisKV) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}
