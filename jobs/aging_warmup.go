package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crewledger/crewledger/internal/aging"
	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
)

type reportBuilder interface {
	Report(ctx context.Context, asOf time.Time) (*aging.Report, error)
}

// AgingWarmupJob pre-builds the aging report so the first dashboard hit of
// the day is served from cache.
type AgingWarmupJob struct {
	Aging   reportBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAgingWarmupJob initialises the warmup handler.
func NewAgingWarmupJob(aging reportBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgingWarmupJob {
	return &AgingWarmupJob{
		Aging:   aging,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the warmup.
func (j *AgingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Aging == nil {
		return errors.New("aging warmup: handler not configured")
	}
	var payload AgingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := j.clock()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed
	}

	tracker := j.Metrics.Track(TaskAgingWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", asOf.Format("2006-01-02")))
	report, err := j.Aging.Report(ctx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("build aging report", slog.Any("error", err))
		return resultErr
	}

	logger.Info("aging report warmed",
		slog.Float64("total_outstanding", report.TotalOutstanding),
		slog.Int("current_invoices", report.Current.InvoiceCount),
	)
	return resultErr
}

func (j *AgingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
