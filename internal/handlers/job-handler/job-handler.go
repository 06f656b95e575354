package job_handler

import (
	"context"
	"net/http"

	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/handlers"
	"github.com/fisioflow/realtime/internal/queue"
	"github.com/fisioflow/realtime/internal/worker"
	"github.com/rs/zerolog/log"
)

const (
	defaultDeadLetterLimit = 20
	maxDeadLetterLimit     = 100
)

type JobInspector interface {
	Stats(ctx context.Context) (*worker.JobStats, error)
	DeadLetters(ctx context.Context, limit int) ([]queue.Job, error)
}

type JobHandler struct {
	Jobs JobInspector
}

func NewJobHandler(jobs JobInspector) *JobHandler {
	return &JobHandler{Jobs: jobs}
}

func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	stats, err := h.Jobs.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read job stats")
		return app_error.NewStorageError("job-stats")
	}

	handlers.Respond(w, r, "job stats fetched", stats)
	return nil
}

func (h *JobHandler) DeadLetters(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	limit, appErr := handlers.QueryInt(r, "limit", defaultDeadLetterLimit)
	if appErr != nil {
		return appErr
	}
	if limit <= 0 || limit > maxDeadLetterLimit {
		limit = defaultDeadLetterLimit
	}

	jobs, err := h.Jobs.DeadLetters(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read dead letters")
		return app_error.NewStorageError("job-dead-letters")
	}

	handlers.Respond(w, r, "dead letters fetched", map[string]any{
		"count": len(jobs),
		"jobs":  jobs,
	})
	return nil
}
