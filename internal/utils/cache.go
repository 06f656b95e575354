package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/redis/go-redis/v9"
)

// A cached value is paired with a generation counter under <key>:gen.
// Invalidation bumps the counter, and a reader only stores what it computed
// if the counter has not moved since it started, so an invalidation that
// races a recompute is never overwritten by the older value.
const generationTTL = 24 * time.Hour

// KEYS[1] value, KEYS[2] generation; ARGV generation, payload, ttl ms
var setAtGenerationScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func GenerationKey(cacheKey string) string {
	return cacheKey + ":gen"
}

// GetCacheData returns (nil, nil) on a cache miss.
func GetCacheData[T any](ctx context.Context, rdb *redis.Client, cacheKey string) (*T, *app_error.AppError) {
	val, err := rdb.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		return nil, nil // cache-miss
	} else if err != nil {
		return nil, app_error.NewUnavailableError("cache unavailable", "redis")
	}

	var data T
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, app_error.NewAppError(http.StatusInternalServerError, "corrupt cache entry", "json")
	}

	return &data, nil
}

// CacheGeneration reads the generation a recompute must be stored against.
func CacheGeneration(ctx context.Context, rdb *redis.Client, cacheKey string) (int64, error) {
	gen, err := rdb.Get(ctx, GenerationKey(cacheKey)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// SetCacheDataAtGeneration stores data only while the generation still equals
// gen. It reports whether the value was written.
func SetCacheDataAtGeneration[T any](ctx context.Context, rdb *redis.Client, cacheKey string, data *T, expire time.Duration, gen int64) (bool, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return false, err
	}
	if expire < time.Millisecond {
		expire = time.Millisecond
	}

	stored, err := setAtGenerationScript.Run(ctx, rdb,
		[]string{cacheKey, GenerationKey(cacheKey)},
		gen, string(payload), expire.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateCacheData drops the value and bumps its generation in one
// transaction.
func InvalidateCacheData(ctx context.Context, rdb *redis.Client, cacheKey string) error {
	genKey := GenerationKey(cacheKey)
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	return err
}
