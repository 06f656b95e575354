package worker

import (
	"context"

	"github.com/fisioflow/realtime/internal/queue"
)

type JobHandler interface {
	HandleJob(ctx context.Context, job queue.Job) error
}

type JobHandlerFunc func(ctx context.Context, job queue.Job) error

func (f JobHandlerFunc) HandleJob(ctx context.Context, job queue.Job) error {
	return f(ctx, job)
}
