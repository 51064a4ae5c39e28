package job

import (
	"context"
	"errors"
	"strconv"
	"time"

	"corelms/internal/cache"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

// Stage names shared by the long-running jobs.
const (
	StageStart        = "start"
	StageDownload     = "download"
	StageExtract      = "extract"
	StageImport       = "import"
	StageGenerate     = "generate"
	StageCommit       = "commit"
	StageRegenEnqueue = "regen_enqueue"
	StageDone         = "done"
	StageCanceled     = "canceled"
)

// Tracker persists job progress into the job's meta hash for external
// observers: current stage, per-stage elapsed seconds, heartbeats, the
// cooperative cancellation flag and terminal error details.
//
// Every write is best-effort: a tracker failure is logged and swallowed so
// observability problems can never abort the job itself.
type Tracker struct {
	kv      domain.Cache
	jobID   string
	metaKey string

	stage   string
	stageAt time.Time
	started bool
}

func NewTracker(kv domain.Cache, jobID string) *Tracker {
	return &Tracker{kv: kv, jobID: jobID, metaKey: cache.JobMetaKey(jobID)}
}

// SetStage closes out the previous stage by accumulating its elapsed seconds
// before overwriting the stage marker. The first call also stamps the job
// start time.
func (t *Tracker) SetStage(ctx context.Context, stage string, detail ...string) {
	now := time.Now()
	pairs := []string{
		"stage", stage,
		"stage_started_at", unix(now),
		"heartbeat_at", unix(now),
	}
	if !t.started {
		t.started = true
		pairs = append(pairs, "job_started_at", unix(now))
	} else if t.stage != "" {
		elapsed := now.Sub(t.stageAt).Seconds()
		pairs = append(pairs, "seconds_"+t.stage, formatSeconds(t.accumulated(ctx, t.stage)+elapsed))
	}
	if len(detail) > 0 && detail[0] != "" {
		pairs = append(pairs, "detail", detail[0])
	}

	t.stage = stage
	t.stageAt = now
	t.write(ctx, pairs)
}

// Heartbeat refreshes only the liveness timestamp so a watchdog can tell
// "stuck" from "working" inside long inner loops.
func (t *Tracker) Heartbeat(ctx context.Context, detail ...string) {
	pairs := []string{"heartbeat_at", unix(time.Now())}
	if len(detail) > 0 && detail[0] != "" {
		pairs = append(pairs, "detail", detail[0])
	}
	t.write(ctx, pairs)
}

// IsCancelRequested reads the externally-set cancellation flag. Read errors
// count as "not canceled"; cancellation stays cooperative and best-effort.
func (t *Tracker) IsCancelRequested(ctx context.Context) bool {
	flag, err := t.kv.HGet(ctx, t.metaKey, "cancel_requested")
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logger.Get().Warn("failed to read cancel flag", zap.String("job_id", t.jobID), zap.Error(err))
		}
		return false
	}
	return flag == "1"
}

// Checkpoint is called between coarse-grained phases. When cancellation was
// requested it marks the job canceled and returns the sentinel; callers must
// stop, roll back and report {ok:false, canceled:true}.
func (t *Tracker) Checkpoint(ctx context.Context) error {
	if !t.IsCancelRequested(ctx) {
		return nil
	}
	t.SetStage(ctx, StageCanceled)
	return domain.ErrJobCanceled
}

// RecordError stores the terminal error classification: machine-readable
// code, retryability class, one-line message and a human hint.
func (t *Tracker) RecordError(ctx context.Context, err error) {
	code := domain.CodeOf(err)
	hint := ""
	var de *domain.DomainError
	if errors.As(err, &de) {
		hint = de.Hint
	}
	t.write(ctx, []string{
		"error_code", string(code),
		"error_class", errorClass(code),
		"error_message", err.Error(),
		"error_hint", hint,
	})
}

// errorClass splits the taxonomy into "retryable" (transient, re-enqueue may
// succeed) and "needs_manual_fix" (the input itself is wrong).
func errorClass(code domain.ErrorCode) string {
	switch code {
	case domain.ErrInvalidID, domain.ErrInvalidInput, domain.ErrNotFound,
		domain.ErrArchiveInvalid, domain.ErrDuplicateModuleTitle,
		domain.ErrSourceContentMissing, domain.ErrEnqueueConflict:
		return "needs_manual_fix"
	default:
		return "retryable"
	}
}

func (t *Tracker) accumulated(ctx context.Context, stage string) float64 {
	raw, err := t.kv.HGet(ctx, t.metaKey, "seconds_"+stage)
	if err != nil {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return seconds
}

func (t *Tracker) write(ctx context.Context, pairs []string) {
	if err := t.kv.HSet(ctx, t.metaKey, pairs...); err != nil {
		logger.Get().Warn("tracker write failed", zap.String("job_id", t.jobID), zap.Error(err))
	}
}

func unix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
