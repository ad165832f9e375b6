// workflows/scheduled_processor.go
package workflows

import (
	"context"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

// ScheduledProcessor periodically re-queues or fails sessions that never
// reached a terminal state
type ScheduledProcessor struct {
	trackingService services.TrackingService
	client          inngestgo.Client
}

func NewScheduledProcessor(trackingService services.TrackingService) *ScheduledProcessor {
	return &ScheduledProcessor{
		trackingService: trackingService,
	}
}

func (p *ScheduledProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// StaleSessionReaper is the Inngest cron variant, used with the inngest queue backend
func (p *ScheduledProcessor) StaleSessionReaper() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "reap-stale-sessions",
			Name: "Reap Stale Tracking Sessions",
		},
		inngestgo.CronTrigger("*/10 * * * *"), // every 10 minutes
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			reaped, err := step.Run(ctx, "reap-stale-sessions", func(ctx context.Context) (int, error) {
				return p.trackingService.ReapStaleSessions(ctx)
			})
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"execution_time": time.Now().UTC().Format(time.RFC3339),
				"reaped":         reaped,
			}, nil
		},
	)

	if err != nil {
		log.Error().Err(err).Str("component", "ScheduledProcessor").Msg("failed to create stale session reaper function")
	}

	return fn
}

// Run reaps on every tick until ctx is cancelled. Used with the redis and memory backends.
func (p *ScheduledProcessor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reapOnce(ctx)
		}
	}
}

func (p *ScheduledProcessor) reapOnce(ctx context.Context) {
	reaped, err := p.trackingService.ReapStaleSessions(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "ScheduledProcessor").Msg("stale session sweep failed")
		return
	}
	if reaped > 0 {
		log.Info().Str("component", "ScheduledProcessor").Int("reaped", reaped).Msg("stale sessions handled")
	}
}
