// workflows/session_jobs.go
package workflows

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/queue"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

// SessionJobHandler connects a queue worker to the tracking service
type SessionJobHandler struct {
	trackingService services.TrackingService
}

func NewSessionJobHandler() *SessionJobHandler {
	return &SessionJobHandler{}
}

// SetService breaks the construction cycle between the queue and the service
func (h *SessionJobHandler) SetService(trackingService services.TrackingService) {
	h.trackingService = trackingService
}

// Handle runs one attempt of a session job
func (h *SessionJobHandler) Handle(ctx context.Context, job *queue.Job) error {
	log.Info().
		Str("component", "SessionJobHandler").
		Str("job_id", job.ID).
		Int("attempt", job.Attempt).
		Int("max_attempts", job.MaxAttempts).
		Msg("running tracking session job")
	return h.trackingService.ExecuteSession(ctx, job.SessionID, job.Attempt)
}

// Exhausted marks the session FAILED once the job has no attempts left
func (h *SessionJobHandler) Exhausted(ctx context.Context, job *queue.Job, err error) {
	if failErr := h.trackingService.FailSession(ctx, job.SessionID, err); failErr != nil {
		log.Error().Err(failErr).Str("component", "SessionJobHandler").Str("job_id", job.ID).Msg("failed to mark session as failed")
	}
}
