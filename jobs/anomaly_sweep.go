package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/timesheet"
)

type anomalyScanner interface {
	SubmittedIDs(ctx context.Context) ([]int64, error)
	ScanAnomalies(ctx context.Context, id int64) ([]timesheet.Anomaly, float64, error)
}

// AnomalySweepJob rescans every submitted timesheet, refreshing the stored
// risk score and surfacing anomalies for approvers.
type AnomalySweepJob struct {
	Timesheets anomalyScanner
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewAnomalySweepJob initialises the sweep handler.
func NewAnomalySweepJob(timesheets anomalyScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnomalySweepJob {
	return &AnomalySweepJob{Timesheets: timesheets, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *AnomalySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Timesheets == nil {
		return errors.New("anomaly sweep: handler not configured")
	}
	var payload AnomalySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskAnomalySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting anomaly sweep")

	ids, err := j.Timesheets.SubmittedIDs(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list submitted timesheets", slog.Any("error", err))
		return resultErr
	}

	flagged := 0
	failed := 0
	for _, id := range ids {
		anomalies, score, err := j.Timesheets.ScanAnomalies(ctx, id)
		if err != nil {
			failed++
			logger.Warn("scan timesheet",
				slog.Int64("timesheet_id", id),
				slog.Any("error", err),
			)
			continue
		}
		if len(anomalies) == 0 {
			continue
		}
		flagged++
		for _, a := range anomalies {
			logger.Warn("timesheet anomaly detected",
				slog.Int64("timesheet_id", id),
				slog.String("rule", a.Rule),
				slog.String("severity", a.Severity),
				slog.Float64("risk_score", score),
				slog.String("detail", a.Detail),
			)
			j.Metrics.AddAnomalies(a.Severity, a.Rule, 1)
		}
	}
	if failed > 0 {
		resultErr = errors.New("anomaly sweep: some timesheets failed")
	}

	logger.Info("completed anomaly sweep",
		slog.Int("scanned", len(ids)),
		slog.Int("flagged", flagged),
		slog.Int("failed", failed),
	)
	return resultErr
}

func (j *AnomalySweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
