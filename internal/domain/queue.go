package domain

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobStarted  JobStatus = "started"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job kinds handled by the worker.
const (
	JobKindImport     = "import"
	JobKindRegenerate = "regenerate"
)

// Job is the envelope pulled off the queue by a worker.
type Job struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// JobInfo is the observable state of a job: status plus the free-form meta
// map maintained by the stage tracker.
type JobInfo struct {
	ID     string
	Kind   string
	Status JobStatus
	Meta   map[string]string
	Result string
}

// EnqueueOptions control job retention. Jobs are ephemeral: they live only
// as long as the queue retains them and are never the system of record for
// content.
type EnqueueOptions struct {
	Timeout   time.Duration
	ResultTTL time.Duration
}

// JobResult is the sentinel-style outcome propagated through the job call
// chain instead of using panics for control flow. Canceled is a distinct
// terminal outcome, not an error.
type JobResult struct {
	OK       bool           `json:"ok"`
	Canceled bool           `json:"canceled,omitempty"`
	ModuleID string         `json:"module_id,omitempty"`
	Report   map[string]int `json:"report,omitempty"`
}

// Queue is the durable job queue contract.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any, opts EnqueueOptions) (string, error)
	Fetch(ctx context.Context, jobID string) (*JobInfo, error)

	// RequestCancel sets the cooperative cancellation flag on the job's meta.
	// The job stops at its next checkpoint.
	RequestCancel(ctx context.Context, jobID string) error
}
