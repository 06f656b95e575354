package worker

import (
	"context"
	"time"

	"github.com/fisioflow/realtime/internal/entity"
	"github.com/fisioflow/realtime/internal/queue"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	dlqPopTimeout   = 5 * time.Second
	dlqErrorBackoff = 5 * time.Second
)

func (wp *WorkerPool) dlqCollection() *mongo.Collection {
	return wp.Mongo.Database(wp.DLQConfig.DatabaseName).Collection(wp.DLQConfig.CollectionName)
}

// StartDLQWorker drains the Redis dead letter list into the Mongo archive,
// where the retry consumer picks them up.
func (wp *WorkerPool) StartDLQWorker(ctx context.Context) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ worker started")
		for {
			backoff := wp.drainDeadLetter(ctx, wp.archiveDeadLetter)
			if !sleepCtx(ctx, backoff) {
				log.Info().Msg("DLQ worker stopping")
				return
			}
		}
	}()
}

// drainDeadLetter moves at most one job from Redis to the archive and
// returns how long to wait before the next attempt.
func (wp *WorkerPool) drainDeadLetter(ctx context.Context, archive func(context.Context, queue.Job, []byte) error) time.Duration {
	job, raw, err := wp.Consumer.PopDeadLetter(ctx, dlqPopTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		if raw != nil {
			log.Warn().Err(err).Msg("DLQWorker invalid job payload")
			return 0
		}
		log.Error().Err(err).Msg("DLQWorker pop failed")
		return dlqErrorBackoff
	}
	if job == nil {
		return 0
	}

	if err := archive(ctx, *job, raw); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to archive DLQ job, pushing back")
		if pushErr := wp.Consumer.PushDeadLetter(context.WithoutCancel(ctx), *job); pushErr != nil {
			log.Error().Err(pushErr).Str("job_id", job.ID).Msg("DLQ job lost")
		}
		return dlqErrorBackoff
	}
	return 0
}

// sleepCtx reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (wp *WorkerPool) archiveDeadLetter(ctx context.Context, job queue.Job, raw []byte) error {
	now := wp.now().UTC()
	doc := entity.DLQJob{
		ID:                 bson.NewObjectID(),
		JobID:              job.ID,
		Type:               job.Type,
		Payload:            raw,
		ErrorMsg:           job.ErrorMsg,
		Status:             entity.DLQStatusPending,
		OriginalRetryCount: job.Retry,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpireAt:           now.Add(7 * 24 * time.Hour),
	}

	if _, err := wp.dlqCollection().InsertOne(ctx, doc); err != nil {
		return err
	}

	log.Error().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Str("error", job.ErrorMsg).
		Msg("DLQ job archived")
	return nil
}

func (wp *WorkerPool) GetDLQStats(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := wp.dlqCollection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}
