package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisConsumer struct {
	Redis *redis.Client
}

func NewConsumer(redis *redis.Client) *RedisConsumer {
	return &RedisConsumer{Redis: redis}
}

// Claim takes up to batch jobs that are due at now. A job is owned by the
// caller only if its ZREM succeeded, so concurrent pollers never run the same
// job twice.
func (c *RedisConsumer) Claim(ctx context.Context, now time.Time, batch int) ([]Job, error) {
	members, err := c.Redis.ZRangeByScore(ctx, DelayedQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(batch),
	}).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(members))
	for _, member := range members {
		removed, err := c.Redis.ZRem(ctx, DelayedQueueKey, member).Result()
		if err != nil {
			return jobs, err
		}
		if removed == 0 {
			continue // claimed by another poller
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			log.Warn().Err(err).Msg("queue: dropping malformed job")
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (c *RedisConsumer) PushDeadLetter(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.Redis.RPush(ctx, DeadLetterKey, raw).Err()
}

// PopDeadLetter blocks up to timeout. It returns (nil, nil) when the list
// stayed empty.
func (c *RedisConsumer) PopDeadLetter(ctx context.Context, timeout time.Duration) (*Job, []byte, error) {
	result, err := c.Redis.BLPop(ctx, timeout, DeadLetterKey).Result()
	if err == redis.Nil {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, err
	}

	raw := []byte(result[1])
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, raw, err
	}
	return &job, raw, nil
}

// DeadLetters lists up to limit jobs still waiting in the Redis dead letter list.
func (c *RedisConsumer) DeadLetters(ctx context.Context, limit int) ([]Job, error) {
	items, err := c.Redis.LRange(ctx, DeadLetterKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (c *RedisConsumer) Pending(ctx context.Context) (int64, error) {
	return c.Redis.ZCard(ctx, DelayedQueueKey).Result()
}
