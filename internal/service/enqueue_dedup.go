package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corelms/internal/cache"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

// lockPending is the placeholder value between lock acquisition and job id
// assignment.
const lockPending = "pending"

// Fingerprint derives the content fingerprint used to deduplicate enqueue
// requests for the same uploaded artifact.
func Fingerprint(info *domain.ObjectInfo) string {
	return fmt.Sprintf("%s:%d", info.ETag, info.Size)
}

// NormalizeTitle folds a module title into its dedup key form.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// EnqueueDeduplicator guards background-job enqueue with set-if-absent locks
// keyed by content fingerprint, normalized title and object key. The locks
// are an availability safeguard, not a correctness guarantee: TTL expiry,
// cancellation and content deletion all release them, and a failed release
// is never fatal.
type EnqueueDeduplicator struct {
	kv       domain.Cache
	lockTTL  time.Duration
	titleTTL time.Duration
}

func NewEnqueueDeduplicator(kv domain.Cache, lockTTL, titleTTL time.Duration) *EnqueueDeduplicator {
	return &EnqueueDeduplicator{kv: kv, lockTTL: lockTTL, titleTTL: titleTTL}
}

// ImportLockKeys lists the lock keys guarding one import request. Empty
// inputs contribute no key.
func (d *EnqueueDeduplicator) ImportLockKeys(fingerprint, title, objectKey string) []string {
	var keys []string
	if fingerprint != "" {
		keys = append(keys, cache.ImportLockByFingerprint(fingerprint))
	}
	if title != "" {
		keys = append(keys, cache.ImportLockByTitle(NormalizeTitle(title)))
	}
	if objectKey != "" {
		keys = append(keys, cache.ImportLockByObjectKey(objectKey))
	}
	return keys
}

// Acquire takes every lock or none. On conflict it reports the holder's job
// id via an ENQUEUE_CONFLICT error and rolls back the locks it had already
// taken.
func (d *EnqueueDeduplicator) Acquire(ctx context.Context, keys []string) error {
	var acquired []string
	for _, key := range keys {
		ttl := d.lockTTL
		if strings.Contains(key, ":title:") {
			ttl = d.titleTTL
		}
		ok, err := d.kv.SetNX(ctx, key, lockPending, ttl)
		if err != nil {
			d.Release(ctx, acquired)
			return domain.NewError(domain.ErrQueueOrUploadFailed, "failed to acquire enqueue lock", err)
		}
		if !ok {
			holder, getErr := d.kv.Get(ctx, key)
			if getErr != nil {
				holder = "unknown"
			}
			d.Release(ctx, acquired)
			return domain.NewEnqueueConflictError(holder)
		}
		acquired = append(acquired, key)
	}
	return nil
}

// Assign overwrites the placeholder with the real job id once the job is
// enqueued, preserving each lock's TTL class.
func (d *EnqueueDeduplicator) Assign(ctx context.Context, keys []string, jobID string) {
	for _, key := range keys {
		ttl := d.lockTTL
		if strings.Contains(key, ":title:") {
			ttl = d.titleTTL
		}
		if err := d.kv.Set(ctx, key, jobID, ttl); err != nil {
			logger.Get().Warn("failed to assign job id to lock", zap.String("key", key), zap.Error(err))
		}
	}
}

// Release drops locks best-effort.
func (d *EnqueueDeduplicator) Release(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := d.kv.Delete(ctx, key); err != nil {
			logger.Get().Warn("failed to release enqueue lock", zap.String("key", key), zap.Error(err))
		}
	}
}
