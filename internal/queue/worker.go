package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"corelms/internal/cache"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const popTimeout = 5 * time.Second

// HandlerFunc executes one job. A returned error means the job failed; a
// JobResult with Canceled set is the distinct canceled outcome, not a
// failure.
type HandlerFunc func(ctx context.Context, job domain.Job) (domain.JobResult, error)

// Worker pulls jobs off the queue and runs them on a bounded pool. Each job
// executes on exactly one goroutine at a time; there is no parallelism
// inside a job, which keeps provider load bounded and stage accounting
// simple.
type Worker struct {
	client      *redis.Client
	queueName   string
	concurrency int
	jobTimeout  time.Duration
	resultTTL   time.Duration
	handlers    map[string]HandlerFunc
}

func NewWorker(client *redis.Client, queueName string, concurrency int, jobTimeout, resultTTL time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		client:      client,
		queueName:   queueName,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		resultTTL:   resultTTL,
		handlers:    make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a job kind. Not safe to call after Run.
func (w *Worker) Register(kind string, h HandlerFunc) {
	w.handlers[kind] = h
}

// Run blocks, processing jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	log := logger.Get()
	for {
		if ctx.Err() != nil {
			return nil
		}
		values, err := w.client.BRPop(ctx, popTimeout, cache.QueueKey(w.queueName)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Error("queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		if len(values) < 2 {
			continue
		}
		var job domain.Job
		if err := json.Unmarshal([]byte(values[1]), &job); err != nil {
			log.Error("dropping malformed job envelope", zap.Error(err))
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job domain.Job) {
	log := logger.Get().With(zap.String("job_id", job.ID), zap.String("kind", job.Kind))
	metaKey := cache.JobMetaKey(job.ID)

	handler, ok := w.handlers[job.Kind]
	if !ok {
		log.Error("no handler registered for job kind")
		w.finalize(ctx, metaKey, domain.JobFailed, domain.JobResult{})
		return
	}

	// A cancel requested while the job was still queued takes effect here.
	if flag, err := w.client.HGet(ctx, metaKey, metaCancelRequested).Result(); err == nil && flag == "1" {
		log.Info("job canceled before start")
		w.finalize(ctx, metaKey, domain.JobCanceled, domain.JobResult{Canceled: true})
		return
	}

	w.client.HSet(ctx, metaKey,
		metaStatus, string(domain.JobStarted),
		metaStartedAt, strconv.FormatInt(time.Now().Unix(), 10),
	)

	jobCtx := ctx
	cancel := func() {}
	if timeout := w.effectiveTimeout(ctx, metaKey); timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	result, err := handler(jobCtx, job)
	cancel()

	switch {
	case err != nil:
		log.Error("job failed", zap.Error(err))
		w.finalize(ctx, metaKey, domain.JobFailed, result)
	case result.Canceled:
		log.Info("job canceled")
		w.finalize(ctx, metaKey, domain.JobCanceled, result)
	default:
		log.Info("job finished")
		w.finalize(ctx, metaKey, domain.JobFinished, result)
	}
}

func (w *Worker) effectiveTimeout(ctx context.Context, metaKey string) time.Duration {
	if raw, err := w.client.HGet(ctx, metaKey, metaTimeout).Result(); err == nil {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return w.jobTimeout
}

// finalize records the terminal status and result, then re-arms the meta TTL
// so observers can poll the outcome for the retention window.
func (w *Worker) finalize(ctx context.Context, metaKey string, status domain.JobStatus, result domain.JobResult) {
	log := logger.Get()
	resultJSON, err := json.Marshal(result)
	if err != nil {
		log.Error("failed to marshal job result", zap.Error(err))
		resultJSON = []byte("{}")
	}
	err = w.client.HSet(ctx, metaKey,
		metaStatus, string(status),
		metaEndedAt, strconv.FormatInt(time.Now().Unix(), 10),
		metaResult, string(resultJSON),
	).Err()
	if err != nil {
		log.Error("failed to finalize job meta", zap.Error(err))
	}
	ttl := w.resultTTL
	if raw, hErr := w.client.HGet(ctx, metaKey, metaResultTTL).Result(); hErr == nil {
		if secs, aErr := strconv.Atoi(raw); aErr == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	if err := w.client.Expire(ctx, metaKey, ttl).Err(); err != nil {
		log.Error("failed to set result ttl", zap.Error(err))
	}
}
