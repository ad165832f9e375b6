package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/metrics"
)

type jobState string

const (
	stateWaiting   jobState = "waiting"
	stateActive    jobState = "active"
	stateDelayed   jobState = "delayed"
	stateCompleted jobState = "completed"
	stateFailed    jobState = "failed"
)

func (s jobState) live() bool {
	return s == stateWaiting || s == stateActive || s == stateDelayed
}

type MemoryOptions struct {
	Name        string
	Policy      RetryPolicy
	Concurrency int
	Handler     Handler
	OnExhausted ExhaustedHandler
}

// MemoryQueue is an in-process Queue and Worker with the same retry and
// retention semantics as RedisQueue. Jobs do not survive a restart.
type MemoryQueue struct {
	opts MemoryOptions

	mu        sync.Mutex
	jobs      map[string]*Job
	states    map[string]jobState
	pending   []string
	completed []string
	failed    []string
	timers    map[string]*time.Timer
	notify    chan struct{}
}

func NewMemoryQueue(opts MemoryOptions) *MemoryQueue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Name == "" {
		opts.Name = "audit"
	}
	return &MemoryQueue{
		opts:   opts,
		jobs:   make(map[string]*Job),
		states: make(map[string]jobState),
		timers: make(map[string]*time.Timer),
		notify: make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.states[job.ID].live() {
		metrics.JobsTotal.WithLabelValues(q.opts.Name, "duplicate").Inc()
		return false, nil
	}

	stored := *job
	stored.MaxAttempts = q.opts.Policy.MaxAttempts
	stored.Attempt = 0
	q.removeFromHistory(job.ID)
	q.jobs[job.ID] = &stored
	q.states[job.ID] = stateWaiting
	q.pending = append(q.pending, job.ID)
	q.signal()
	return true, nil
}

// Run starts the workers and blocks until ctx is cancelled and in-flight jobs finish
func (q *MemoryQueue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()

	q.mu.Lock()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}
		q.process(ctx, job)
	}
}

func (q *MemoryQueue) next() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	if len(q.pending) > 0 {
		q.signal()
	}

	job := q.jobs[id]
	job.Attempt++
	q.states[id] = stateActive
	snapshot := *job
	return &snapshot, true
}

func (q *MemoryQueue) process(ctx context.Context, job *Job) {
	logger := log.With().Str("component", "MemoryQueue").Str("job_id", job.ID).Int("attempt", job.Attempt).Logger()

	start := time.Now()
	err := runHandler(ctx, q.opts.Handler, job)
	metrics.JobDuration.WithLabelValues(q.opts.Name).Observe(time.Since(start).Seconds())

	q.mu.Lock()
	stored := q.jobs[job.ID]

	if err == nil {
		q.states[job.ID] = stateCompleted
		q.completed = q.pushBounded(q.completed, job.ID, q.opts.Policy.KeepCompleted)
		q.mu.Unlock()
		metrics.JobsTotal.WithLabelValues(q.opts.Name, "completed").Inc()
		logger.Info().Msg("job completed")
		return
	}

	stored.LastError = err.Error()
	if !IsPermanent(err) && !stored.IsLastAttempt() && ctx.Err() == nil {
		delay := q.opts.Policy.Delay(stored.Attempt)
		q.states[job.ID] = stateDelayed
		q.timers[job.ID] = time.AfterFunc(delay, func() { q.promote(job.ID) })
		q.mu.Unlock()
		metrics.JobsTotal.WithLabelValues(q.opts.Name, "retried").Inc()
		logger.Warn().Err(err).Dur("delay", delay).Msg("job failed, retry scheduled")
		return
	}

	if ctx.Err() != nil && !stored.IsLastAttempt() && !IsPermanent(err) {
		// shutting down: leave the job waiting for the next Run
		stored.Attempt--
		q.states[job.ID] = stateWaiting
		q.pending = append(q.pending, job.ID)
		q.mu.Unlock()
		return
	}

	q.states[job.ID] = stateFailed
	q.failed = q.pushBounded(q.failed, job.ID, q.opts.Policy.KeepFailed)
	final := *stored
	q.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(q.opts.Name, "exhausted").Inc()
	logger.Error().Err(err).Msg("job exhausted")
	if q.opts.OnExhausted != nil {
		q.opts.OnExhausted(context.WithoutCancel(ctx), &final, err)
	}
}

func (q *MemoryQueue) promote(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.timers, id)
	if q.states[id] != stateDelayed {
		return
	}
	q.states[id] = stateWaiting
	q.pending = append(q.pending, id)
	q.signal()
}

// pushBounded appends id and forgets the oldest entries beyond keep
func (q *MemoryQueue) pushBounded(list []string, id string, keep int) []string {
	list = append(list, id)
	for keep >= 0 && len(list) > keep {
		evicted := list[0]
		list = list[1:]
		if !q.states[evicted].live() {
			delete(q.jobs, evicted)
			delete(q.states, evicted)
		}
	}
	return list
}

func (q *MemoryQueue) removeFromHistory(id string) {
	q.completed = without(q.completed, id)
	q.failed = without(q.failed, id)
}

func without(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Stats is a point-in-time view of the queue
type Stats struct {
	Waiting   int
	Active    int
	Delayed   int
	Completed []string
	Failed    []string
}

func (q *MemoryQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, state := range q.states {
		switch state {
		case stateWaiting:
			s.Waiting++
		case stateActive:
			s.Active++
		case stateDelayed:
			s.Delayed++
		}
	}
	s.Completed = append([]string(nil), q.completed...)
	s.Failed = append([]string(nil), q.failed...)
	return s
}

// Job returns a copy of the stored job, if still retained
func (q *MemoryQueue) Job(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}
