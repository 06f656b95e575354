package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fisioflow/realtime/internal/queue"
	"github.com/fisioflow/realtime/internal/utils/types"
	worker_handler "github.com/fisioflow/realtime/internal/worker/worker-handler"
	"github.com/fisioflow/realtime/state"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 10
	baseRetryDelay      = 5 * time.Second
	maxRetryDelay       = 10 * time.Minute
	dlaCooldown         = 10 * time.Minute
)

type WorkerPool struct {
	Redis      *redis.Client
	Mongo      *mongo.Client
	Consumer   *queue.RedisConsumer
	Producer   *queue.RedisProducer
	Handler    JobHandler
	WorkerNum  int
	JobChannel chan queue.Job
	DLQConfig  types.DLQRetryConfig

	PollInterval time.Duration
	BatchSize    int

	wg  sync.WaitGroup
	now func() time.Time

	// last dead letter alert per job type
	dlaMu    sync.Mutex
	dlaCache map[string]time.Time
}

func NewWorkerPool(appState *state.AppState, workerNum int, handler JobHandler, dlqConfig types.DLQRetryConfig) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}

	return &WorkerPool{
		Redis:        appState.Redis,
		Mongo:        appState.Mongo,
		Consumer:     queue.NewConsumer(appState.Redis),
		Producer:     queue.NewProducer(appState.Redis),
		Handler:      handler,
		WorkerNum:    workerNum,
		JobChannel:   make(chan queue.Job, 100),
		DLQConfig:    dlqConfig.WithDefaults(),
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		now:          time.Now,
		dlaCache:     make(map[string]time.Time),
	}
}

// Start returns immediately. Every goroutine stops when ctx is cancelled; use
// Wait to block until they have.
func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Msgf("Starting worker pool with %d workers", wp.WorkerNum)

	for i := 0; i < wp.WorkerNum; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go wp.dispatch(ctx)

	if wp.Mongo != nil {
		wp.StartDLQWorker(ctx)
		wp.StartDLQRetryConsumer(ctx)
	} else {
		log.Warn().Msg("MongoDB not configured, dead letters stay in Redis")
	}
}

func (wp *WorkerPool) dispatch(ctx context.Context) {
	defer wp.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping job dispatcher")
			return
		case <-timer.C:
			claimed := wp.pollOnce(ctx)
			if claimed > 0 {
				timer.Reset(0)
			} else {
				timer.Reset(wp.PollInterval)
			}
		}
	}
}

// pollOnce claims due jobs and hands them to the workers. Jobs claimed while
// shutting down are put back on the queue.
func (wp *WorkerPool) pollOnce(ctx context.Context) int {
	jobs, err := wp.Consumer.Claim(ctx, wp.now(), wp.BatchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Worker: failed to claim jobs")
		}
	}

	for i, job := range jobs {
		select {
		case wp.JobChannel <- job:
		case <-ctx.Done():
			wp.requeue(jobs[i:])
			return i
		}
	}
	return len(jobs)
}

func (wp *WorkerPool) requeue(jobs []queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wp.Producer.EnqueueBatch(ctx, jobs); err != nil {
		log.Error().Err(err).Int("count", len(jobs)).Msg("Worker: failed to requeue jobs on shutdown")
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Debug().Msgf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msgf("Worker %d stopping", id)
			return
		case job := <-wp.JobChannel:
			if ctx.Err() != nil {
				wp.requeue([]queue.Job{job})
				return
			}
			wp.process(ctx, job)
		}
	}
}

func (wp *WorkerPool) process(ctx context.Context, job queue.Job) {
	err := wp.Handler.HandleJob(ctx, job)
	if err == nil {
		log.Debug().Str("job_id", job.ID).Str("type", job.Type).Msg("Job completed")
		return
	}
	if ctx.Err() != nil {
		// interrupted by shutdown, not a failure of the job
		wp.requeue([]queue.Job{job})
		return
	}
	wp.handleFailure(ctx, job, err)
}

func (wp *WorkerPool) handleFailure(ctx context.Context, job queue.Job, jobErr error) {
	// the job is already off the queue; finish bookkeeping even during shutdown
	ctx = context.WithoutCancel(ctx)

	job.Retry++
	job.ErrorMsg = jobErr.Error()
	now := wp.now()

	permanent := errors.Is(jobErr, worker_handler.ErrInvalidPayload)
	if permanent || job.Retry >= job.MaxRetry || job.Expired(now) {
		if err := wp.Consumer.PushDeadLetter(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to push job to DLQ")
			return
		}
		log.Error().Str("job_id", job.ID).Str("type", job.Type).Bool("permanent", permanent).Msg("Job moved to DLQ")
		wp.sendDLA(job, now)
		return
	}

	delay := retryDelay(job.Retry)
	job.RunAt = now.Add(delay).UnixMilli()
	if err := wp.Producer.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to reschedule job")
		return
	}
	log.Warn().Str("job_id", job.ID).Str("error", job.ErrorMsg).Msgf("Retrying in %v (%d/%d)", delay, job.Retry, job.MaxRetry)
}

// retryDelay doubles from 5s per attempt, capped at 10 minutes.
func retryDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > 10 {
		return maxRetryDelay
	}
	delay := baseRetryDelay * time.Duration(1<<retry)
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// sendDLA raises at most one dead letter alert per job type per cooldown.
func (wp *WorkerPool) sendDLA(job queue.Job, now time.Time) bool {
	wp.dlaMu.Lock()
	defer wp.dlaMu.Unlock()

	lastAlert, ok := wp.dlaCache[job.Type]
	if ok && now.Sub(lastAlert) < dlaCooldown {
		return false
	}

	log.Error().Str("job_id", job.ID).Str("type", job.Type).Str("error", job.ErrorMsg).Msg("Dead Letter Alert: job failed permanently")
	wp.dlaCache[job.Type] = now
	return true
}

type JobStats struct {
	Pending     int64            `json:"pending"`
	DeadLetters int64            `json:"dead_letters"`
	Archive     map[string]int64 `json:"archive,omitempty"`
}

func (wp *WorkerPool) Stats(ctx context.Context) (*JobStats, error) {
	pending, err := wp.Consumer.Pending(ctx)
	if err != nil {
		return nil, err
	}

	deadLetters, err := wp.Redis.LLen(ctx, queue.DeadLetterKey).Result()
	if err != nil {
		return nil, err
	}

	stats := &JobStats{Pending: pending, DeadLetters: deadLetters}
	if wp.Mongo != nil {
		archive, err := wp.GetDLQStats(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read DLQ archive stats")
		} else {
			stats.Archive = archive
		}
	}
	return stats, nil
}

func (wp *WorkerPool) DeadLetters(ctx context.Context, limit int) ([]queue.Job, error) {
	return wp.Consumer.DeadLetters(ctx, limit)
}

// Wait blocks until every goroutine has stopped, then puts jobs still
// buffered in JobChannel back on the queue.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()

	var leftover []queue.Job
	for len(wp.JobChannel) > 0 {
		leftover = append(leftover, <-wp.JobChannel)
	}
	if len(leftover) > 0 {
		log.Info().Int("count", len(leftover)).Msg("Requeueing buffered jobs")
		wp.requeue(leftover)
	}

	log.Info().Msg("All workers have stopped")
}
