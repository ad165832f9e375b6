// Package queue is the durable, at-least-once job dispatch between the API
// and the workers that run tracking sessions.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Job runs one tracking session. Its ID is derived from the session so a
// session can never have two live jobs.
type Job struct {
	ID          string    `json:"id"`
	SessionID   uuid.UUID `json:"sessionId"`
	Attempt     int       `json:"attempt"` // 1-based, incremented when a worker picks the job up
	MaxAttempts int       `json:"maxAttempts"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	LastError   string    `json:"lastError,omitempty"`
}

func JobID(sessionID uuid.UUID) string {
	return "audit-" + sessionID.String()
}

func NewJob(sessionID uuid.UUID) *Job {
	return &Job{
		ID:         JobID(sessionID),
		SessionID:  sessionID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// IsLastAttempt reports whether a failure now exhausts the job
func (j *Job) IsLastAttempt() bool {
	return j.MaxAttempts > 0 && j.Attempt >= j.MaxAttempts
}

// Handler processes one job attempt. A returned error schedules a retry
// unless it is permanent or the attempts are used up.
type Handler func(ctx context.Context, job *Job) error

// ExhaustedHandler is called once when a job fails for the last time
type ExhaustedHandler func(ctx context.Context, job *Job, err error)

// Queue accepts jobs. Enqueue reports false when a job with the same ID is
// already waiting, delayed or running.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) (bool, error)
}

// Worker consumes jobs until ctx is cancelled
type Worker interface {
	Run(ctx context.Context) error
}

// RetryPolicy mirrors the retry and retention settings of the audit queue
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	KeepCompleted int
	KeepFailed    int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     5 * time.Second,
		KeepCompleted: 100,
		KeepFailed:    50,
	}
}

// Delay returns the wait before the retry that follows failed attempt n:
// BaseDelay * 2^(n-1), without jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// PermanentError marks a failure that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// runHandler invokes h and converts a panic into an error
func runHandler(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return h(ctx, job)
}
