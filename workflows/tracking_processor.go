// workflows/tracking_processor.go
package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/queue"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

const TrackingSessionEventName = "tracking.session.run"

type TrackingSessionEvent struct {
	SessionID   string `json:"session_id"`
	JobID       string `json:"job_id"`
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// TrackingProcessor runs tracking sessions as Inngest functions
type TrackingProcessor struct {
	trackingService services.TrackingService
	client          inngestgo.Client
	cfg             *config.Config
}

func NewTrackingProcessor(trackingService services.TrackingService, cfg *config.Config) *TrackingProcessor {
	return &TrackingProcessor{
		trackingService: trackingService,
		cfg:             cfg,
	}
}

func (p *TrackingProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

func (p *TrackingProcessor) maxAttempts() int {
	if p.cfg.Queue.MaxAttempts < 1 {
		return 1
	}
	return p.cfg.Queue.MaxAttempts
}

func (p *TrackingProcessor) RunTrackingSession() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "run-tracking-session",
			Name:    "Run Tracking Session - Prompts x Providers",
			Retries: inngestgo.IntPtr(p.maxAttempts() - 1),
		},
		inngestgo.EventTrigger(TrackingSessionEventName, nil),
		func(ctx context.Context, input inngestgo.Input[TrackingSessionEvent]) (any, error) {
			attempt := input.InputCtx.Attempt + 1
			logger := log.With().
				Str("component", "RunTrackingSession").
				Str("session_id", input.Event.Data.SessionID).
				Int("attempt", attempt).
				Logger()

			sessionID, err := uuid.Parse(input.Event.Data.SessionID)
			if err != nil {
				logger.Error().Err(err).Msg("event carries an invalid session id, dropping")
				return map[string]interface{}{"status": "invalid_session_id"}, nil
			}

			_, err = step.Run(ctx, "execute-session", func(ctx context.Context) (interface{}, error) {
				return nil, p.trackingService.ExecuteSession(ctx, sessionID, attempt)
			})
			if err == nil {
				return map[string]interface{}{"session_id": sessionID.String(), "status": "done"}, nil
			}

			if queue.IsPermanent(err) || attempt >= p.maxAttempts() {
				logger.Error().Err(err).Msg("tracking session job exhausted")
				if failErr := p.trackingService.FailSession(ctx, sessionID, err); failErr != nil {
					return nil, fmt.Errorf("failed to mark session %s as failed: %w", sessionID, failErr)
				}
				return map[string]interface{}{"session_id": sessionID.String(), "status": "failed", "error": err.Error()}, nil
			}

			logger.Warn().Err(err).Msg("tracking session attempt failed, Inngest will retry")
			return nil, fmt.Errorf("execute session %s: %w", sessionID, err)
		},
	)

	if err != nil {
		log.Error().Err(err).Str("component", "TrackingProcessor").Msg("failed to create run-tracking-session function")
	}

	return fn
}

// InngestQueue dispatches session jobs as Inngest events. The event ID is the
// job ID, so Inngest drops duplicates of a live job.
type InngestQueue struct {
	client inngestgo.Client
}

func NewInngestQueue(client inngestgo.Client) *InngestQueue {
	return &InngestQueue{client: client}
}

func (q *InngestQueue) Enqueue(ctx context.Context, job *queue.Job) (bool, error) {
	evt := inngestgo.Event{
		ID:   inngestgo.StrPtr(job.ID),
		Name: TrackingSessionEventName,
		Data: map[string]interface{}{
			"session_id":   job.SessionID.String(),
			"job_id":       job.ID,
			"triggered_by": "api",
		},
	}
	if _, err := q.client.Send(ctx, evt); err != nil {
		return false, fmt.Errorf("failed to send %s event: %w", TrackingSessionEventName, err)
	}
	return true, nil
}
