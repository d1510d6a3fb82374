package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/model"
)

// DefaultRedisKeyPrefix groups every key under one hash tag so scripts stay single-slot in cluster mode.
const DefaultRedisKeyPrefix = "{prediction}"

const (
	fieldState       = "state"
	fieldResult      = "result"
	fieldError       = "error"
	fieldCreatedAt   = "created_at"
	fieldCompletedAt = "completed_at"

	maxCreateAttempts = 5
)

// createScript inserts a pending job unless the key already exists.
// KEYS[1]=job hash, KEYS[2]=pending index; ARGV: created_at ms, key ttl ms, job id.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'state', 'pending', 'created_at', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// transitionScript moves a pending job to a terminal state.
// KEYS[1]=job hash, KEYS[2]=pending index;
// ARGV: new state, outcome field, outcome value, completed_at ms, retention ms, job id.
// Returns 1 on success, 0 if the job is unknown, -1 if it is already terminal.
var transitionScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  redis.call('ZREM', KEYS[2], ARGV[6])
  return 0
end
if state ~= 'pending' then
  return -1
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], ARGV[2], ARGV[3], 'completed_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('ZREM', KEYS[2], ARGV[6])
return 1
`)

// RedisJobStoreOptions configures a RedisJobStore.
type RedisJobStoreOptions struct {
	Client    redis.UniversalClient
	Retention job.RetentionProvider
	KeyPrefix string
	Clock     Clock
	NewID     func() string
}

// RedisJobStore keeps each job in a hash with a native TTL derived from the retention policy.
// Pending ids are indexed in a sorted set scored by creation time so stale jobs can be found.
type RedisJobStore struct {
	client    redis.UniversalClient
	retention job.RetentionProvider
	prefix    string
	clock     Clock
	newID     func() string
}

var (
	_ core.JobStore  = (*RedisJobStore)(nil)
	_ core.JobReaper = (*RedisJobStore)(nil)
)

// NewRedisJobStore constructs a RedisJobStore.
func NewRedisJobStore(opts RedisJobStoreOptions) (*RedisJobStore, error) {
	if opts.Client == nil {
		return nil, ErrRedisClientMissing
	}
	if opts.Retention == nil {
		return nil, ErrRetentionRequired
	}
	s := &RedisJobStore{
		client:    opts.Client,
		retention: opts.Retention,
		prefix:    opts.KeyPrefix,
		clock:     opts.Clock,
		newID:     opts.NewID,
	}
	if s.prefix == "" {
		s.prefix = DefaultRedisKeyPrefix
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func (s *RedisJobStore) jobKey(id string) string { return s.prefix + ":job:" + id }
func (s *RedisJobStore) pendingKey() string      { return s.prefix + ":jobs:pending" }

// Create inserts a pending job. The key expires after the pending window plus the longest
// terminal window, so abandoned records cannot outlive the policy even without the reaper.
func (s *RedisJobStore) Create(ctx context.Context) (string, error) {
	now := s.clock.Now()
	ttl := s.retention.Current().PendingKeyTTL()

	for range maxCreateAttempts {
		id := s.newID()
		if id == "" {
			continue
		}
		created, err := createScript.Run(ctx, s.client,
			[]string{s.jobKey(id), s.pendingKey()},
			now.UnixMilli(), ttl.Milliseconds(), id,
		).Int()
		if err != nil {
			return "", fmt.Errorf("redis create job: %w", err)
		}
		if created == 1 {
			return id, nil
		}
	}
	return "", fmt.Errorf("redis create job: no free id after %d attempts", maxCreateAttempts)
}

// Complete transitions a pending job to completed.
func (s *RedisJobStore) Complete(ctx context.Context, id string, result model.PredictionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.transition(ctx, id, model.JobStateCompleted, fieldResult, string(payload))
}

// Fail transitions a pending job to failed.
func (s *RedisJobStore) Fail(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, model.JobStateFailed, fieldError, message)
}

func (s *RedisJobStore) transition(ctx context.Context, id string, state model.JobState, field, value string) error {
	if id == "" {
		return model.ErrJobNotFound
	}
	now := s.clock.Now()
	ttl := s.retention.Current().TTLFor(state)

	res, err := transitionScript.Run(ctx, s.client,
		[]string{s.jobKey(id), s.pendingKey()},
		string(state), field, value, now.UnixMilli(), ttl.Milliseconds(), id,
	).Int()
	if err != nil {
		return fmt.Errorf("redis %s job: %w", state, err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return model.ErrJobNotFound
	default:
		return model.ErrJobAlreadyTerminal
	}
}

// Get returns the job stored under id.
func (s *RedisJobStore) Get(ctx context.Context, id string) (model.Job, error) {
	if id == "" {
		return model.Job{}, model.ErrJobNotFound
	}
	fields, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return model.Job{}, fmt.Errorf("redis get job: %w", err)
	}
	if len(fields) == 0 {
		return model.Job{}, model.ErrJobNotFound
	}

	j, err := decodeRedisJob(id, fields)
	if err != nil {
		return model.Job{}, err
	}

	// Native TTLs were set under the policy in force at transition time; honour a tighter one now.
	if s.retention.Current().Expired(j, s.clock.Now()) {
		if delErr := s.client.Del(ctx, s.jobKey(id)).Err(); delErr != nil {
			return model.Job{}, fmt.Errorf("redis evict job: %w", delErr)
		}
		return model.Job{}, model.ErrJobNotFound
	}
	return j, nil
}

// FailStalePending fails pending jobs older than params.MaxAge using the pending index.
func (s *RedisJobStore) FailStalePending(ctx context.Context, params core.FailStalePendingParams) (int64, error) {
	cutoff := s.clock.Now().Add(-params.MaxAge).UnixMilli()
	ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff, 10),
		Count: int64(max(params.BatchSize, 1)),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list stale pending: %w", err)
	}

	var n int64
	for _, id := range ids {
		err := s.Fail(ctx, id, params.Message)
		switch {
		case err == nil:
			n++
		case errors.Is(err, model.ErrJobNotFound), errors.Is(err, model.ErrJobAlreadyTerminal):
			// Raced with the runner or the key expired; the script already pruned the index.
			if zerr := s.client.ZRem(ctx, s.pendingKey(), id).Err(); zerr != nil {
				return n, fmt.Errorf("redis prune pending index: %w", zerr)
			}
		default:
			return n, err
		}
	}
	return n, nil
}

// DeleteExpired is a no-op: terminal keys carry their own TTL.
func (s *RedisJobStore) DeleteExpired(_ context.Context, _ core.DeleteExpiredParams) (int64, error) {
	return 0, nil
}

func decodeRedisJob(id string, fields map[string]string) (model.Job, error) {
	var state model.JobState
	if err := state.UnmarshalText([]byte(fields[fieldState])); err != nil {
		return model.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}

	created, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return model.Job{}, fmt.Errorf("decode job %s created_at: %w", id, err)
	}
	j := model.NewPendingJob(id, created)
	j.State = state

	if raw, ok := fields[fieldCompletedAt]; ok {
		completed, err := parseMillis(raw)
		if err != nil {
			return model.Job{}, fmt.Errorf("decode job %s completed_at: %w", id, err)
		}
		j.CompletedAt = &completed
	}

	switch state {
	case model.JobStateCompleted:
		var r model.PredictionResult
		if err := json.Unmarshal([]byte(fields[fieldResult]), &r); err != nil {
			return model.Job{}, fmt.Errorf("decode job %s result: %w", id, err)
		}
		j.Result = &r
	case model.JobStateFailed:
		msg := fields[fieldError]
		j.Error = &msg
	case model.JobStatePending:
	}
	return j, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
