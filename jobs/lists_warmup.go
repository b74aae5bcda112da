package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bloodbridge/bloodbridge/internal/jobs"
)

// ListWarmer prefetches list pages into the list cache.
// *donations.PublicWarmer implements it.
type ListWarmer interface {
	Resource() string
	Warm(ctx context.Context, pages int) (int, error)
}

// ListsWarmupJob fills the list cache ahead of visitors.
type ListsWarmupJob struct {
	Warmers []ListWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewListsWarmupJob wires dependencies for the warmup handler.
func NewListsWarmupJob(logger *slog.Logger, metrics *jobmetrics.Metrics, warmers ...ListWarmer) *ListsWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListsWarmupJob{
		Warmers: warmers,
		Logger:  logger.With(slog.String("job", TaskListsWarmup)),
		Metrics: metrics,
		Timeout: 30 * time.Second,
	}
}

// Handle processes TaskListsWarmup tasks. A failing list does not stop the
// others; the run reports the first failure.
func (j *ListsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("lists warmup: handler not configured")
	}
	payload := ListsWarmupPayload{Pages: DefaultWarmupPages}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Pages < 1 {
		payload.Pages = DefaultWarmupPages
	}

	tracker := j.Metrics.Track(TaskListsWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	var firstErr error
	for _, w := range j.Warmers {
		n, werr := w.Warm(ctx, payload.Pages)
		j.Metrics.AddWarmed(w.Resource(), n)
		if werr != nil {
			j.Logger.Warn("warm list", slog.String("resource", w.Resource()), slog.Any("error", werr))
			if firstErr == nil {
				firstErr = werr
			}
			continue
		}
		j.Logger.Info("list warmed", slog.String("resource", w.Resource()), slog.Int("pages", n))
	}
	return firstErr
}
