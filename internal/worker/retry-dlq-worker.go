package worker

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/fisioflow/realtime/internal/entity"
	"github.com/fisioflow/realtime/internal/queue"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func (wp *WorkerPool) StartDLQRetryConsumer(ctx context.Context) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ retry consumer started")
		ticker := time.NewTicker(wp.DLQConfig.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("DLQ retry consumer stopping")
				return
			case <-ticker.C:
				wp.processDLQJobs(ctx)
			}
		}
	}()
}

func (wp *WorkerPool) processDLQJobs(ctx context.Context) {
	collection := wp.dlqCollection()
	now := wp.now().UTC()

	filter := bson.M{
		"status":      bson.M{"$in": []string{entity.DLQStatusPending, entity.DLQStatusFailed}},
		"retry_count": bson.M{"$lt": wp.DLQConfig.MaxRetryCount},
		"$or": []bson.M{
			{"next_retry_at": bson.M{"$exists": false}},
			{"next_retry_at": bson.M{"$lte": now}},
		},
	}

	opts := options.Find().SetSort(bson.M{"created_at": 1}).SetLimit(int64(wp.DLQConfig.BatchSize))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query DLQ jobs")
		return
	}
	defer cursor.Close(ctx)

	var dlqJobs []entity.DLQJob
	if err := cursor.All(ctx, &dlqJobs); err != nil {
		log.Error().Err(err).Msg("Failed to decode DLQ jobs")
		return
	}

	if len(dlqJobs) == 0 {
		return
	}

	log.Info().Int("count", len(dlqJobs)).Msg("Processing DLQ jobs")
	for i := range dlqJobs {
		wp.retryDLQJob(ctx, collection, &dlqJobs[i])
	}
}

func (wp *WorkerPool) retryDLQJob(ctx context.Context, collection *mongo.Collection, dlqJob *entity.DLQJob) {
	// claim by status so two instances never retry the same document
	res, err := collection.UpdateOne(ctx,
		bson.M{"_id": dlqJob.ID, "status": dlqJob.Status},
		bson.M{"$set": bson.M{"status": entity.DLQStatusProcessing, "updated_at": wp.now().UTC()}},
	)
	if err != nil {
		log.Error().Err(err).Str("job_id", dlqJob.JobID).Msg("Failed to update DLQ job status")
		return
	}
	if res.ModifiedCount == 0 {
		return
	}

	var originalJob queue.Job
	if err := json.Unmarshal(dlqJob.Payload, &originalJob); err != nil {
		wp.markDLQJob(ctx, collection, dlqJob.ID, entity.DLQStatusPermanentlyFailed, "invalid payload: "+err.Error())
		return
	}

	originalJob.Retry = 0
	originalJob.ErrorMsg = ""

	if err := wp.Handler.HandleJob(ctx, originalJob); err != nil {
		wp.handleDLQRetryFailure(ctx, collection, dlqJob, err.Error())
		return
	}

	wp.markDLQJob(ctx, collection, dlqJob.ID, entity.DLQStatusCompleted, "")
	log.Info().Str("job_id", dlqJob.JobID).Str("type", dlqJob.Type).Int("dlq_retry_count", dlqJob.RetryCount).Msg("DLQ job successfully retried")
}

func (wp *WorkerPool) handleDLQRetryFailure(ctx context.Context, collection *mongo.Collection, dlqJob *entity.DLQJob, errorMsg string) {
	newRetryCount := dlqJob.RetryCount + 1

	if newRetryCount >= wp.DLQConfig.MaxRetryCount {
		wp.markDLQJob(ctx, collection, dlqJob.ID, entity.DLQStatusPermanentlyFailed, errorMsg)
		log.Error().Str("job_id", dlqJob.JobID).Str("type", dlqJob.Type).Int("dlq_retry_count", newRetryCount).Msg("DLQ job permanently failed after max retries")
		return
	}

	nextRetryAt := wp.now().UTC().Add(nextDLQRetry(wp.DLQConfig.RetryInterval, wp.DLQConfig.BackoffFactor, newRetryCount))

	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": dlqJob.ID},
		bson.M{
			"$set": bson.M{
				"status":        entity.DLQStatusFailed,
				"retry_count":   newRetryCount,
				"error_msg":     errorMsg,
				"next_retry_at": nextRetryAt,
				"updated_at":    wp.now().UTC(),
			},
		},
	)
	if err != nil {
		log.Error().Err(err).Str("job_id", dlqJob.JobID).Msg("Failed to update DLQ job retry info")
		return
	}

	log.Warn().
		Str("job_id", dlqJob.JobID).
		Str("type", dlqJob.Type).
		Int("dlq_retry_count", newRetryCount).
		Time("next_retry_at", nextRetryAt).
		Msg("DLQ job scheduled for retry")
}

func nextDLQRetry(interval time.Duration, factor float64, retry int) time.Duration {
	return time.Duration(float64(interval) * math.Pow(factor, float64(retry)))
}

func (wp *WorkerPool) markDLQJob(ctx context.Context, collection *mongo.Collection, id bson.ObjectID, status, errorMsg string) {
	now := wp.now().UTC()
	set := bson.M{"status": status, "updated_at": now}

	switch status {
	case entity.DLQStatusCompleted:
		set["completed_at"] = now
	case entity.DLQStatusPermanentlyFailed:
		set["failed_at"] = now
		set["error_msg"] = errorMsg
	}

	if _, err := collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		log.Error().Err(err).Str("id", id.Hex()).Str("status", status).Msg("Failed to update DLQ job")
	}
}
