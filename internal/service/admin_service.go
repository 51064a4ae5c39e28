package service

import (
	"context"
	"fmt"
	"strings"

	"corelms/internal/cache"
	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

// ImportPayload is the import job's queue payload. The lock key inputs ride
// along so the job can release its enqueue locks on cancellation.
type ImportPayload struct {
	ObjectKey   string `json:"object_key"`
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
}

// RegeneratePayload is the regeneration job's queue payload.
type RegeneratePayload struct {
	ModuleID string `json:"module_id"`
}

// AdminService drives the background pipeline from the admin surface:
// enqueue imports and regenerations, inspect jobs, request cancellation.
type AdminService struct {
	storage   domain.ObjectStorage
	modules   domain.ModuleRepository
	queue     domain.Queue
	kv        domain.Cache
	dedup     *EnqueueDeduplicator
	workerCfg config.WorkerConfig
}

func NewAdminService(
	storage domain.ObjectStorage,
	modules domain.ModuleRepository,
	queue domain.Queue,
	kv domain.Cache,
	dedup *EnqueueDeduplicator,
	workerCfg config.WorkerConfig,
) *AdminService {
	return &AdminService{
		storage:   storage,
		modules:   modules,
		queue:     queue,
		kv:        kv,
		dedup:     dedup,
		workerCfg: workerCfg,
	}
}

// EnqueueImport validates an uploaded archive reference, takes the dedup
// locks and enqueues the import job. The object must already exist; its
// fingerprint (etag plus size) dedups re-uploads of identical content even
// under a different key or title.
func (s *AdminService) EnqueueImport(ctx context.Context, objectKey, title string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", domain.NewInvalidInputError("object key is required")
	}
	if strings.TrimSpace(title) == "" {
		return "", domain.NewInvalidInputError("module title is required")
	}

	info, err := s.storage.Stat(ctx, objectKey)
	if err != nil {
		return "", err
	}
	fingerprint := Fingerprint(info)

	existing, err := s.modules.GetModuleByTitle(ctx, title)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", domain.NewError(domain.ErrDuplicateModuleTitle,
			fmt.Sprintf("a module titled %q already exists", title), nil).
			WithHint("Pick a different title or delete the existing module first.")
	}

	keys := s.dedup.ImportLockKeys(fingerprint, title, objectKey)
	if err := s.dedup.Acquire(ctx, keys); err != nil {
		return "", err
	}

	jobID, err := s.queue.Enqueue(ctx, domain.JobKindImport, ImportPayload{
		ObjectKey:   objectKey,
		Title:       title,
		Fingerprint: fingerprint,
	}, domain.EnqueueOptions{
		Timeout:   s.workerCfg.JobTimeout,
		ResultTTL: s.workerCfg.ResultTTL,
	})
	if err != nil {
		s.dedup.Release(ctx, keys)
		return "", err
	}
	s.dedup.Assign(ctx, keys, jobID)

	logger.Get().Info("import job enqueued",
		zap.String("job_id", jobID),
		zap.String("object_key", objectKey),
		zap.String("title", title))
	return jobID, nil
}

// EnqueueRegenerate enqueues AI regeneration for a module's pending
// questions, guarded by a per-module lock so concurrent requests collapse
// into one job.
func (s *AdminService) EnqueueRegenerate(ctx context.Context, moduleID string) (string, error) {
	if strings.TrimSpace(moduleID) == "" {
		return "", domain.NewInvalidIDError(moduleID)
	}
	module, err := s.modules.GetModule(ctx, moduleID)
	if err != nil {
		return "", err
	}
	if module == nil {
		return "", domain.NewNotFoundError(fmt.Sprintf("module not found: %s", moduleID))
	}

	lockKey := cache.RegenLock(moduleID)
	ok, err := s.kv.SetNX(ctx, lockKey, lockPending, s.workerCfg.LockTTL)
	if err != nil {
		return "", domain.NewError(domain.ErrQueueOrUploadFailed, "failed to acquire regeneration lock", err)
	}
	if !ok {
		holder, getErr := s.kv.Get(ctx, lockKey)
		if getErr != nil {
			holder = "unknown"
		}
		return "", domain.NewEnqueueConflictError(holder)
	}

	jobID, err := s.queue.Enqueue(ctx, domain.JobKindRegenerate, RegeneratePayload{
		ModuleID: moduleID,
	}, domain.EnqueueOptions{
		Timeout:   s.workerCfg.JobTimeout,
		ResultTTL: s.workerCfg.ResultTTL,
	})
	if err != nil {
		s.dedup.Release(ctx, []string{lockKey})
		return "", err
	}
	s.dedup.Assign(ctx, []string{lockKey}, jobID)

	logger.Get().Info("regeneration job enqueued",
		zap.String("job_id", jobID),
		zap.String("module_id", moduleID))
	return jobID, nil
}

// GetJob exposes a job's observable state.
func (s *AdminService) GetJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, domain.NewInvalidIDError(jobID)
	}
	return s.queue.Fetch(ctx, jobID)
}

// CancelJob flips the cooperative cancellation flag; the job stops at its
// next checkpoint.
func (s *AdminService) CancelJob(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return domain.NewInvalidIDError(jobID)
	}
	return s.queue.RequestCancel(ctx, jobID)
}
