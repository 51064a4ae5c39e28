package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"corelms/internal/cache"
	"corelms/internal/domain"
	"corelms/internal/util"

	"github.com/redis/go-redis/v9"
)

// Meta hash fields owned by the queue. The stage tracker writes additional
// fields into the same hash.
const (
	metaStatus     = "status"
	metaKind       = "kind"
	metaEnqueuedAt = "enqueued_at"
	metaStartedAt  = "started_at"
	metaEndedAt    = "ended_at"
	metaResult     = "result"
	metaResultTTL  = "result_ttl_seconds"
	metaTimeout    = "timeout_seconds"

	metaCancelRequested = "cancel_requested"
	metaCanceledAt      = "canceled_at"
)

// RedisQueue is a Redis-list-backed job queue. Jobs travel as JSON envelopes
// on a list; per-job state lives in a meta hash that doubles as the stage
// tracker's storage. Jobs are ephemeral: the meta hash expires after the
// result TTL and the queue is never the system of record for content.
type RedisQueue struct {
	client *redis.Client
	name   string
	newID  func() string
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name, newID: util.NewULID}
}

func (q *RedisQueue) Enqueue(ctx context.Context, kind string, payload any, opts domain.EnqueueOptions) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}
	job := domain.Job{ID: q.newID(), Kind: kind, Payload: body}
	envelope, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job envelope: %w", err)
	}

	metaKey := cache.JobMetaKey(job.ID)
	err = q.client.HSet(ctx, metaKey,
		metaStatus, string(domain.JobQueued),
		metaKind, kind,
		metaEnqueuedAt, strconv.FormatInt(time.Now().Unix(), 10),
		metaTimeout, strconv.Itoa(int(opts.Timeout.Seconds())),
		metaResultTTL, strconv.Itoa(int(opts.ResultTTL.Seconds())),
	).Err()
	if err != nil {
		return "", domain.NewError(domain.ErrQueueOrUploadFailed, "failed to write job meta", err)
	}
	// The meta must outlive a job that is never picked up.
	if err := q.client.Expire(ctx, metaKey, opts.Timeout+opts.ResultTTL).Err(); err != nil {
		return "", domain.NewError(domain.ErrQueueOrUploadFailed, "failed to set job meta ttl", err)
	}

	if err := q.client.LPush(ctx, cache.QueueKey(q.name), string(envelope)).Err(); err != nil {
		return "", domain.NewError(domain.ErrQueueOrUploadFailed, "failed to enqueue job", err)
	}
	return job.ID, nil
}

func (q *RedisQueue) Fetch(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	meta, err := q.client.HGetAll(ctx, cache.JobMetaKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, domain.NewNotFoundError(fmt.Sprintf("job not found: %s", jobID))
	}
	return &domain.JobInfo{
		ID:     jobID,
		Kind:   meta[metaKind],
		Status: domain.JobStatus(meta[metaStatus]),
		Meta:   meta,
		Result: meta[metaResult],
	}, nil
}

// RequestCancel flips the cooperative cancellation flag. The job observes it
// at its next checkpoint; a job that never started is finalized as canceled
// by the worker the moment it is picked up.
func (q *RedisQueue) RequestCancel(ctx context.Context, jobID string) error {
	metaKey := cache.JobMetaKey(jobID)
	exists, err := q.client.Exists(ctx, metaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check job meta: %w", err)
	}
	if exists == 0 {
		return domain.NewNotFoundError(fmt.Sprintf("job not found: %s", jobID))
	}
	err = q.client.HSet(ctx, metaKey,
		metaCancelRequested, "1",
		metaCanceledAt, strconv.FormatInt(time.Now().Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	return nil
}
