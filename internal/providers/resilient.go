package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
)

// Resilient wraps an AIProvider with a per-call timeout, a rate limiter and a
// circuit breaker, and records call metrics.
type Resilient struct {
	next    AIProvider
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type ResilientOptions struct {
	Timeout       time.Duration
	RatePerSecond float64 // <= 0 disables limiting
	// consecutive failures before the breaker opens
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewResilient(next AIProvider, opts ResilientOptions) *Resilient {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	name := next.GetProviderName()
	threshold := opts.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("component", "ResilientProvider").Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Resilient{
		next:    next,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}
}

func (r *Resilient) GetProviderName() string {
	return r.next.GetProviderName()
}

func (r *Resilient) RunQuestion(ctx context.Context, query string) (*common.AIResponse, error) {
	name := r.GetProviderName()

	if err := r.limiter.Wait(ctx); err != nil {
		metrics.ProviderCalls.WithLabelValues(name, "rate_limited").Inc()
		return nil, fmt.Errorf("%s rate limiter: %w", name, err)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.RunQuestion(callCtx, query)
	})
	metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
		}
		metrics.ProviderCalls.WithLabelValues(name, outcome).Inc()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	resp := out.(*common.AIResponse)
	metrics.ProviderCalls.WithLabelValues(name, "success").Inc()
	metrics.ProviderTokens.WithLabelValues(name, "input").Add(float64(resp.InputTokens))
	metrics.ProviderTokens.WithLabelValues(name, "output").Add(float64(resp.OutputTokens))
	metrics.ProviderCost.WithLabelValues(name).Add(resp.Cost)
	return resp, nil
}
