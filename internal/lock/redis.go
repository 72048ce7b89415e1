package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a Locker shared by every process pointed at the same server.
// Each acquisition stores a random owner token so a release never deletes a
// lock that expired and was taken by someone else.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "courtbot:lock:"}
}

// DialRedis parses a redis:// URL and checks the server is reachable.
func DialRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client), nil
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) TryLock(ctx context.Context, name string, ttl time.Duration) (Release, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	key, token := r.prefix+name, hex.EncodeToString(b)

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.client, []string{key}, token).Err()
	}, nil
}
