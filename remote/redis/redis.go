// Package redis adapts redis/go-redis/v9 to the remote.Store contract.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/stratacache/remote"
)

var ErrNilClient = errors.New("redis remote: nil client")

// releaseScript deletes the lock key only when it still holds the caller's
// token, so a lock that expired and was re-taken by another process is never
// released by the previous holder.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ remote.Store = (*Redis)(nil)

type Config struct {
	// Client, when set, is used as-is. Otherwise Addr/Password/DB configure
	// an owned single-node client.
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client

	Addr     string
	Password string
	DB       int
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client != nil {
		return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
	}
	if cfg.Addr == "" {
		return nil, ErrNilClient
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{rdb: rdb, closeClient: true}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0 // non-positive TTLs mean "no expiry"
	}
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0
	}
	return r.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (r *Redis) Del(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Del(ctx, key).Result()
	return n > 0, err
}

func (r *Redis) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
			// miss
		case string:
			out[i] = []byte(vv)
		case []byte:
			out[i] = vv
		}
	}
	return out, nil
}

func (r *Redis) MDel(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.rdb.Del(ctx, keys...).Result()
}

func (r *Redis) TakeLock(ctx context.Context, lockKey, token string, guard time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, lockKey, token, guard).Result()
}

func (r *Redis) ReleaseLock(ctx context.Context, lockKey, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{lockKey}, token).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
