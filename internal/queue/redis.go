package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/metrics"
)

const (
	lockTTL         = 30 * time.Second
	promoteInterval = time.Second
	blockTimeout    = 5 * time.Second
)

// enqueueScript adds the job unless one with the same ID is still live.
// KEYS: job hash, wait list, completed list, failed list. ARGV: job JSON, job ID.
var enqueueScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'waiting' or state == 'active' or state == 'delayed' then
  return 0
end
redis.call('LREM', KEYS[3], 0, ARGV[2])
redis.call('LREM', KEYS[4], 0, ARGV[2])
redis.call('HSET', KEYS[1], 'state', 'waiting', 'data', ARGV[1])
redis.call('LPUSH', KEYS[2], ARGV[2])
return 1
`)

type RedisOptions struct {
	Name        string
	Policy      RetryPolicy
	Concurrency int
	Handler     Handler
	OnExhausted ExhaustedHandler
}

// RedisQueue keeps jobs in redis so they survive process restarts and are
// shared by every worker process. Layout under "queue:<name>:":
// job:<id> hash, wait and active lists, delayed sorted set scored by due
// time, completed and failed history lists, lock:<id> keys held by workers.
type RedisQueue struct {
	rdb      *redis.Client
	opts     RedisOptions
	workerID string
}

func NewRedisQueue(rdb *redis.Client, opts RedisOptions) *RedisQueue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Name == "" {
		opts.Name = "audit"
	}
	return &RedisQueue{rdb: rdb, opts: opts, workerID: uuid.NewString()}
}

func (q *RedisQueue) key(parts ...string) string {
	k := "queue:" + q.opts.Name
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) (bool, error) {
	stored := *job
	stored.Attempt = 0
	stored.MaxAttempts = q.opts.Policy.MaxAttempts
	data, err := json.Marshal(&stored)
	if err != nil {
		return false, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	created, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.key("job", job.ID), q.key("wait"), q.key("completed"), q.key("failed")},
		string(data), job.ID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	if created == 0 {
		metrics.JobsTotal.WithLabelValues(q.opts.Name, "duplicate").Inc()
		return false, nil
	}
	return true, nil
}

// Run recovers stalled jobs, then consumes jobs until ctx is cancelled
func (q *RedisQueue) Run(ctx context.Context) error {
	if err := q.recoverStalled(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.maintain(ctx)
	}()

	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (q *RedisQueue) work(ctx context.Context) {
	for ctx.Err() == nil {
		id, err := q.rdb.BLMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT", blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("component", "RedisQueue").Msg("failed to fetch next job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		q.process(ctx, id)
	}
}

func (q *RedisQueue) process(ctx context.Context, id string) {
	logger := log.With().Str("component", "RedisQueue").Str("job_id", id).Logger()

	if err := q.rdb.Set(ctx, q.key("lock", id), q.workerID, lockTTL).Err(); err != nil {
		logger.Error().Err(err).Msg("failed to take job lock")
	}

	job, err := q.loadJob(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("dropping unreadable job")
		q.rdb.LRem(ctx, q.key("active"), 1, id)
		q.rdb.Del(ctx, q.key("lock", id))
		return
	}
	job.Attempt++
	if err := q.saveJob(ctx, job, stateActive); err != nil {
		logger.Error().Err(err).Msg("failed to mark job active")
	}

	lockCtx, stopLock := context.WithCancel(ctx)
	go q.refreshLock(lockCtx, id)

	start := time.Now()
	handlerErr := runHandler(ctx, q.opts.Handler, job)
	stopLock()
	metrics.JobDuration.WithLabelValues(q.opts.Name).Observe(time.Since(start).Seconds())

	// bookkeeping must finish even while shutting down
	bg := context.WithoutCancel(ctx)
	defer q.rdb.Del(bg, q.key("lock", id))
	logger = logger.With().Int("attempt", job.Attempt).Logger()

	if handlerErr == nil {
		q.finish(bg, job, stateCompleted, q.key("completed"), q.opts.Policy.KeepCompleted)
		metrics.JobsTotal.WithLabelValues(q.opts.Name, "completed").Inc()
		logger.Info().Msg("job completed")
		return
	}

	job.LastError = handlerErr.Error()
	if !IsPermanent(handlerErr) && !job.IsLastAttempt() {
		delay := q.opts.Policy.Delay(job.Attempt)
		due := float64(time.Now().Add(delay).UnixMilli())
		_, err := q.rdb.TxPipelined(bg, func(pipe redis.Pipeliner) error {
			pipe.LRem(bg, q.key("active"), 1, id)
			pipe.ZAdd(bg, q.key("delayed"), redis.Z{Score: due, Member: id})
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to schedule retry")
		}
		q.saveJob(bg, job, stateDelayed)
		metrics.JobsTotal.WithLabelValues(q.opts.Name, "retried").Inc()
		logger.Warn().Err(handlerErr).Dur("delay", delay).Msg("job failed, retry scheduled")
		return
	}

	q.finish(bg, job, stateFailed, q.key("failed"), q.opts.Policy.KeepFailed)
	metrics.JobsTotal.WithLabelValues(q.opts.Name, "exhausted").Inc()
	logger.Error().Err(handlerErr).Msg("job exhausted")
	if q.opts.OnExhausted != nil {
		q.opts.OnExhausted(bg, job, handlerErr)
	}
}

// finish moves the job into a bounded history list and deletes the hashes
// of entries that fall off its end
func (q *RedisQueue) finish(ctx context.Context, job *Job, state jobState, listKey string, keep int) {
	if err := q.saveJob(ctx, job, state); err != nil {
		log.Error().Err(err).Str("component", "RedisQueue").Str("job_id", job.ID).Msg("failed to save job state")
	}

	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.LPush(ctx, listKey, job.ID)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("component", "RedisQueue").Str("job_id", job.ID).Msg("failed to record finished job")
		return
	}

	if keep < 0 {
		return
	}
	evicted, err := q.rdb.LRange(ctx, listKey, int64(keep), -1).Result()
	if err != nil || len(evicted) == 0 {
		return
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, old := range evicted {
			pipe.Del(ctx, q.key("job", old))
		}
		// LTRIM 0 -1 would keep everything
		if keep == 0 {
			pipe.Del(ctx, listKey)
		} else {
			pipe.LTrim(ctx, listKey, 0, int64(keep)-1)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "RedisQueue").Msg("failed to trim job history")
	}
}

func (q *RedisQueue) refreshLock(ctx context.Context, id string) {
	ticker := time.NewTicker(lockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.rdb.Expire(ctx, q.key("lock", id), lockTTL)
		}
	}
}

// maintain promotes due retries and periodically re-queues stalled jobs
func (q *RedisQueue) maintain(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	var ticks int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("component", "RedisQueue").Msg("failed to promote delayed jobs")
			}
			ticks++
			if ticks%int(lockTTL/promoteInterval) == 0 {
				if err := q.recoverStalled(ctx); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("component", "RedisQueue").Msg("failed to recover stalled jobs")
				}
			}
		}
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, id := range due {
		// only the process that removes the member promotes it
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, q.key("job", id), "state", string(stateWaiting))
			pipe.LPush(ctx, q.key("wait"), id)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// recoverStalled moves active jobs whose worker lock expired back to wait
func (q *RedisQueue) recoverStalled(ctx context.Context) error {
	active, err := q.rdb.LRange(ctx, q.key("active"), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list active jobs: %w", err)
	}
	for _, id := range active {
		exists, err := q.rdb.Exists(ctx, q.key("lock", id)).Result()
		if err != nil {
			return fmt.Errorf("failed to check lock for %s: %w", id, err)
		}
		if exists == 1 {
			continue
		}
		removed, err := q.rdb.LRem(ctx, q.key("active"), 1, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		q.rdb.HSet(ctx, q.key("job", id), "state", string(stateWaiting))
		q.rdb.RPush(ctx, q.key("wait"), id)
		log.Warn().Str("component", "RedisQueue").Str("job_id", id).Msg("recovered stalled job")
	}
	return nil
}

func (q *RedisQueue) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.HGet(ctx, q.key("job", id), "data").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) saveJob(ctx context.Context, job *Job, state jobState) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.HSet(ctx, q.key("job", job.ID), "state", string(state), "data", string(data)).Err()
}

// JobState returns the stored state of a job, or "" when it is not retained
func (q *RedisQueue) JobState(ctx context.Context, id string) (string, error) {
	state, err := q.rdb.HGet(ctx, q.key("job", id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return state, err
}
