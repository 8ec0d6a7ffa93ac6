package state

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aerosuite/platform/internal/resilience"
)

// RedisBackend is the shared-store PersistenceBackend used when state must
// survive one process and be visible to every worker. A circuit breaker
// sheds calls while Redis is down so a dead store fails fast instead of
// stalling every request on connection timeouts.
type RedisBackend struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *resilience.Breaker
}

// NewRedisBackend wraps client. Entries expire after ttl; zero means no
// expiry (callers own lifecycle via Delete).
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client:  client,
		ttl:     ttl,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "redis-state"}),
	}
}

func (r *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	return r.breaker.Do(func() error {
		return r.client.Set(ctx, key, data, r.ttl).Err()
	})
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	var missing bool
	err := r.breaker.Do(func() error {
		b, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is a healthy answer; it must not trip the breaker.
			missing = true
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, ErrNotFound
	}
	return data, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.breaker.Do(func() error {
		return r.client.Del(ctx, key).Err()
	})
}

func (r *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.breaker.Do(func() error {
		var cursor uint64
		keys = keys[:0]
		for {
			batch, next, err := r.client.Scan(ctx, cursor, prefix+"*", 256).Result()
			if err != nil {
				return err
			}
			keys = append(keys, batch...)
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
	return keys, err
}

func (r *RedisBackend) Close(ctx context.Context) error {
	return r.client.Close()
}

// casScript performs the compare-and-swap server-side so it is atomic per
// key across every worker process. Empty-string arguments stand in for the
// nil sentinels of CompareAndSwapper (records here are JSON and never
// empty, so the encoding is unambiguous).
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == '' then
	if cur then return 0 end
else
	if not cur or cur ~= ARGV[1] then return 0 end
end
if ARGV[2] == '' then
	redis.call('DEL', KEYS[1])
elseif tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// CompareAndSwap implements CompareAndSwapper with a server-side script.
func (r *RedisBackend) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	var swapped bool
	err := r.breaker.Do(func() error {
		res, err := casScript.Run(ctx, r.client, []string{key},
			string(old), string(new), r.ttl.Milliseconds()).Int()
		if err != nil {
			return err
		}
		swapped = res == 1
		return nil
	})
	return swapped, err
}
