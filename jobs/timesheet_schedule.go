package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/placement"
	"github.com/crewledger/crewledger/internal/timesheet"
)

type placementLister interface {
	ListActive(ctx context.Context) ([]placement.Placement, error)
}

type timesheetOpener interface {
	EnsureTimesheet(ctx context.Context, placementID int64, day time.Time) (*timesheet.Timesheet, bool, error)
}

// TimesheetScheduleJob opens draft timesheets for every active placement
// whose billing period covers the scheduling day. Re-runs are harmless:
// existing sheets are left alone.
type TimesheetScheduleJob struct {
	Placements placementLister
	Timesheets timesheetOpener
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewTimesheetScheduleJob initialises the scheduling handler.
func NewTimesheetScheduleJob(placements placementLister, timesheets timesheetOpener, logger *slog.Logger, metrics *jobmetrics.Metrics) *TimesheetScheduleJob {
	return &TimesheetScheduleJob{
		Placements: placements,
		Timesheets: timesheets,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scheduling pass.
func (j *TimesheetScheduleJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Placements == nil || j.Timesheets == nil {
		return errors.New("timesheet schedule: handler not configured")
	}
	var payload TimesheetSchedulePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	day := j.clock()
	if payload.Day != "" {
		parsed, err := time.Parse("2006-01-02", payload.Day)
		if err != nil {
			return asynq.SkipRetry
		}
		day = parsed
	}

	tracker := j.Metrics.Track(TaskTimesheetSchedule)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("day", day.Format("2006-01-02")))
	logger.Info("starting timesheet scheduling")

	placements, err := j.Placements.ListActive(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list active placements", slog.Any("error", err))
		return resultErr
	}

	opened := 0
	failed := 0
	for _, p := range placements {
		_, created, err := j.Timesheets.EnsureTimesheet(ctx, p.ID, day)
		if err != nil {
			failed++
			logger.Warn("open draft timesheet",
				slog.Int64("placement_id", p.ID),
				slog.Any("error", err),
			)
			continue
		}
		if created {
			opened++
		}
	}
	if failed > 0 {
		resultErr = errors.New("timesheet schedule: some placements failed")
	}

	logger.Info("completed timesheet scheduling",
		slog.Int("placements", len(placements)),
		slog.Int("opened", opened),
		slog.Int("failed", failed),
	)
	return resultErr
}

func (j *TimesheetScheduleJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
