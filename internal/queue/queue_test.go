package queue_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/queue"
)

func TestJobIDIsDerivedFromSession(t *testing.T) {
	id := uuid.MustParse("6f1c1f1e-8a8e-4c55-9d0e-2f7c2b1f0a11")
	assert.Equal(t, "audit-6f1c1f1e-8a8e-4c55-9d0e-2f7c2b1f0a11", queue.JobID(id))
	assert.Equal(t, queue.JobID(id), queue.NewJob(id).ID)
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := queue.DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := queue.DefaultRetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 100, policy.KeepCompleted)
	assert.Equal(t, 50, policy.KeepFailed)
}

func TestPermanentErrors(t *testing.T) {
	base := errors.New("session not found")
	err := queue.Permanent(base)

	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, queue.IsPermanent(base))
	assert.Nil(t, queue.Permanent(nil))
}

func TestIsLastAttempt(t *testing.T) {
	job := &queue.Job{Attempt: 2, MaxAttempts: 3}
	assert.False(t, job.IsLastAttempt())
	job.Attempt = 3
	assert.True(t, job.IsLastAttempt())
}
