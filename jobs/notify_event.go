package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/notify"
)

// NotifyEventJob delivers queued lifecycle events to the configured sink.
type NotifyEventJob struct {
	Sink    notify.Notifier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotifyEventJob initialises the notification delivery handler.
func NewNotifyEventJob(sink notify.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyEventJob {
	return &NotifyEventJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle delivers one event.
func (j *NotifyEventJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("notify event: handler not configured")
	}
	var event notify.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	if event.Type == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskNotifyEvent)
	j.Sink.Notify(ctx, event)
	if j.Logger != nil {
		j.Logger.Debug("notification delivered",
			slog.String("event_id", event.ID.String()),
			slog.String("type", event.Type),
		)
	}
	return tracker.End(nil)
}
