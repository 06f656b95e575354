package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DelayedQueueKey = "fisioflow:jobs:delayed"
	DeadLetterKey   = "fisioflow:jobs:dlq"
)

var ErrInvalidJob = errors.New("invalid job")

// Producer schedules jobs; the notification service only needs this half.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
}

// RedisProducer writes jobs to the delayed sorted set, scored by RunAt so
// the consumer can claim everything due with one range query.
type RedisProducer struct {
	Redis *redis.Client
}

func NewProducer(rdb *redis.Client) *RedisProducer {
	return &RedisProducer{Redis: rdb}
}

func (p *RedisProducer) Enqueue(ctx context.Context, job Job) error {
	member, err := encodeJob(job)
	if err != nil {
		return err
	}

	return p.Redis.ZAdd(ctx, DelayedQueueKey, redis.Z{
		Score:  float64(job.RunAt),
		Member: member,
	}).Err()
}

// EnqueueBatch schedules jobs in one round trip. Nothing is written when a
// job fails validation.
func (p *RedisProducer) EnqueueBatch(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(jobs))
	for _, job := range jobs {
		member, err := encodeJob(job)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{Score: float64(job.RunAt), Member: member})
	}

	return p.Redis.ZAdd(ctx, DelayedQueueKey, members...).Err()
}

func encodeJob(job Job) ([]byte, error) {
	if job.ID == "" || job.Type == "" {
		return nil, fmt.Errorf("%w: id and type are required", ErrInvalidJob)
	}
	if job.RunAt <= 0 {
		return nil, fmt.Errorf("%w: job %s has no run_at", ErrInvalidJob, job.ID)
	}

	return json.Marshal(job)
}
