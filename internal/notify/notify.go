package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the ledger core.
const (
	EventTimesheetSubmitted = "timesheet.submitted"
	EventTimesheetApproved  = "timesheet.approved"
	EventTimesheetRejected  = "timesheet.rejected"
	EventInvoiceSent        = "invoice.sent"
	EventPaymentRecorded    = "payment.recorded"
	EventCreditMemoIssued   = "credit_memo.issued"
)

// Event describes a ledger lifecycle notification.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	EntityID   int64          `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with a fresh id and the current time.
func NewEvent(eventType string, entityID int64, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Notifier delivers events to interested parties. Delivery is
// fire-and-forget: implementations log failures and never propagate them,
// so the ledger never blocks on notification success.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the structured log. Used in development
// and as the fallback sink.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	if n == nil || n.Logger == nil {
		return
	}
	n.Logger.Info("ledger event",
		slog.String("event_id", event.ID.String()),
		slog.String("type", event.Type),
		slog.Int64("entity_id", event.EntityID),
	)
}

// Enqueuer submits notification events to the background queue.
type Enqueuer interface {
	EnqueueNotifyEvent(ctx context.Context, event Event) error
}

// AsyncNotifier hands events to the job queue for delivery. Enqueue
// failures are logged and swallowed.
type AsyncNotifier struct {
	Enqueuer Enqueuer
	Logger   *slog.Logger
}

// Notify implements Notifier.
func (n *AsyncNotifier) Notify(ctx context.Context, event Event) {
	if n == nil || n.Enqueuer == nil {
		return
	}
	if err := n.Enqueuer.EnqueueNotifyEvent(ctx, event); err != nil && n.Logger != nil {
		n.Logger.Warn("enqueue notification",
			slog.String("type", event.Type),
			slog.Int64("entity_id", event.EntityID),
			slog.Any("error", err),
		)
	}
}
