package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/crewledger/crewledger/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTimesheetSchedule opens draft timesheets for active placements.
	TaskTimesheetSchedule = "timesheet:schedule"
	// TaskAnomalySweep rescans submitted timesheets for anomalies.
	TaskAnomalySweep = "timesheet:anomaly_sweep"
	// TaskAgingWarmup pre-builds the aging report for today.
	TaskAgingWarmup = "aging:warmup"
	// TaskMirrorPush delivers one invoice or payment to the external mirror.
	TaskMirrorPush = "mirror:push"
	// TaskNotifyEvent delivers a ledger lifecycle event.
	TaskNotifyEvent = "notify:event"
)

// TimesheetSchedulePayload optionally pins the scheduling day. Empty means
// the current day in UTC.
type TimesheetSchedulePayload struct {
	Day string `json:"day,omitempty"`
}

// NewTimesheetScheduleTask constructs a timesheet scheduling task.
func NewTimesheetScheduleTask(payload TimesheetSchedulePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTimesheetSchedule, data), nil
}

// AnomalySweepPayload carries no parameters; the sweep always covers every
// submitted timesheet.
type AnomalySweepPayload struct{}

// NewAnomalySweepTask constructs an anomaly sweep task.
func NewAnomalySweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(AnomalySweepPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnomalySweep, data), nil
}

// AgingWarmupPayload optionally pins the as-of date. Empty means today.
type AgingWarmupPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewAgingWarmupTask constructs an aging warmup task.
func NewAgingWarmupTask(payload AgingWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgingWarmup, data), nil
}

// MirrorPushPayload identifies the entity awaiting mirror delivery.
type MirrorPushPayload struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// NewMirrorPushTask constructs a mirror push task.
func NewMirrorPushTask(payload MirrorPushPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMirrorPush, data), nil
}

// NewNotifyEventTask constructs a notification delivery task.
func NewNotifyEventTask(event notify.Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyEvent, data), nil
}
