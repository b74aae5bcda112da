package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bloodbridge/bloodbridge/internal/jobs"
	"github.com/bloodbridge/bloodbridge/internal/location"
)

// LocationRefresher reloads the location dataset. *location.Loader
// implements it.
type LocationRefresher interface {
	Refresh(ctx context.Context) (*location.Tree, error)
}

// LocationRefreshJob keeps the cached district dataset current.
type LocationRefreshJob struct {
	Loader  LocationRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLocationRefreshJob wires dependencies for the refresh handler.
func NewLocationRefreshJob(loader LocationRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *LocationRefreshJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationRefreshJob{Loader: loader, Logger: logger.With(slog.String("job", TaskLocationRefresh)), Metrics: metrics}
}

// Handle processes TaskLocationRefresh tasks.
func (j *LocationRefreshJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Loader == nil {
		return errors.New("location refresh: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLocationRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	tree, err := j.Loader.Refresh(ctx)
	if err != nil {
		j.Logger.Error("refresh location dataset", slog.Any("error", err))
		return err
	}
	j.Logger.Info("location dataset refreshed", slog.Int("districts", tree.Len()))
	return nil
}
