package job

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"corelms/internal/cache"
	"corelms/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_SetStage(t *testing.T) {
	ctx := context.Background()
	kv := newMemCache()
	tracker := NewTracker(kv, "job1")
	metaKey := cache.JobMetaKey("job1")

	tracker.SetStage(ctx, StageStart)

	meta, err := kv.HGetAll(ctx, metaKey)
	require.NoError(t, err)
	assert.Equal(t, StageStart, meta["stage"])
	assert.NotEmpty(t, meta["job_started_at"])
	assert.NotEmpty(t, meta["heartbeat_at"])

	tracker.SetStage(ctx, StageDownload, "archive.zip")

	meta, err = kv.HGetAll(ctx, metaKey)
	require.NoError(t, err)
	assert.Equal(t, StageDownload, meta["stage"])
	assert.Equal(t, "archive.zip", meta["detail"])

	// Closing out the start stage recorded its elapsed seconds.
	seconds, err := strconv.ParseFloat(meta["seconds_"+StageStart], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 0.0)
}

func TestTracker_SecondsAccumulateAcrossRevisits(t *testing.T) {
	ctx := context.Background()
	kv := newMemCache()
	tracker := NewTracker(kv, "job1")
	metaKey := cache.JobMetaKey("job1")

	require.NoError(t, kv.HSet(ctx, metaKey, "seconds_"+StageGenerate, "12.500"))

	tracker.SetStage(ctx, StageGenerate)
	tracker.SetStage(ctx, StageCommit)

	meta, err := kv.HGetAll(ctx, metaKey)
	require.NoError(t, err)
	seconds, err := strconv.ParseFloat(meta["seconds_"+StageGenerate], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 12.5)
}

func TestTracker_Checkpoint(t *testing.T) {
	ctx := context.Background()
	kv := newMemCache()
	tracker := NewTracker(kv, "job1")
	metaKey := cache.JobMetaKey("job1")

	require.NoError(t, tracker.Checkpoint(ctx), "no flag set")

	require.NoError(t, kv.HSet(ctx, metaKey, "cancel_requested", "1"))

	err := tracker.Checkpoint(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrJobCanceled))

	meta, err := kv.HGetAll(ctx, metaKey)
	require.NoError(t, err)
	assert.Equal(t, StageCanceled, meta["stage"])
}

func TestTracker_IsCancelRequested_ReadErrorMeansNo(t *testing.T) {
	tracker := NewTracker(newMemCache(), "job1")
	assert.False(t, tracker.IsCancelRequested(context.Background()))
}

func TestTracker_RecordError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantClass string
	}{
		{
			name:      "archive invalid is manual fix",
			err:       domain.NewError(domain.ErrArchiveInvalid, "no lesson files", nil).WithHint("pack .txt files"),
			wantCode:  "ARCHIVE_INVALID",
			wantClass: "needs_manual_fix",
		},
		{
			name:      "generation exhausted is retryable",
			err:       domain.NewError(domain.ErrAIGenerationExhausted, "all providers exhausted", nil),
			wantCode:  "AI_GENERATION_EXHAUSTED",
			wantClass: "retryable",
		},
		{
			name:      "unclassified error is retryable internal",
			err:       errors.New("connection reset"),
			wantCode:  "INTERNAL_ERROR",
			wantClass: "retryable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := newMemCache()
			tracker := NewTracker(kv, "job1")

			tracker.RecordError(ctx, tt.err)

			meta, err := kv.HGetAll(ctx, cache.JobMetaKey("job1"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, meta["error_code"])
			assert.Equal(t, tt.wantClass, meta["error_class"])
			assert.NotEmpty(t, meta["error_message"])
		})
	}
}

func TestTracker_Heartbeat(t *testing.T) {
	ctx := context.Background()
	kv := newMemCache()
	tracker := NewTracker(kv, "job1")

	tracker.Heartbeat(ctx, "lesson 3/10")

	meta, err := kv.HGetAll(ctx, cache.JobMetaKey("job1"))
	require.NoError(t, err)
	assert.NotEmpty(t, meta["heartbeat_at"])
	assert.Equal(t, "lesson 3/10", meta["detail"])
	assert.Empty(t, meta["stage"], "heartbeat must not touch the stage")
}
