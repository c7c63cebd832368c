package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/crewledger/crewledger/internal/invoice"
	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/mirror"
)

type invoiceSource interface {
	GetInvoice(ctx context.Context, id int64) (*invoice.Detail, error)
	GetPayment(ctx context.Context, id int64) (*invoice.Payment, error)
}

type mirrorSink interface {
	Push(ctx context.Context, kind string, payload any) (mirror.Receipt, error)
}

// MirrorPushJob delivers one invoice or payment snapshot to the external
// accounting mirror. Failed deliveries are retried by the queue; local
// ledger state is never touched.
type MirrorPushJob struct {
	Invoices invoiceSource
	Mirror   mirrorSink
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewMirrorPushJob initialises the mirror push handler.
func NewMirrorPushJob(invoices invoiceSource, sink mirrorSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *MirrorPushJob {
	return &MirrorPushJob{Invoices: invoices, Mirror: sink, Logger: logger, Metrics: metrics}
}

// Handle executes one push.
func (j *MirrorPushJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil || j.Mirror == nil {
		return errors.New("mirror push: handler not configured")
	}
	var payload MirrorPushPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskMirrorPush)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("kind", payload.Kind),
		slog.Int64("id", payload.ID),
	)

	var body any
	switch payload.Kind {
	case mirror.KindInvoice:
		detail, err := j.Invoices.GetInvoice(ctx, payload.ID)
		if err != nil {
			resultErr = err
			logger.Error("load invoice for mirror", slog.Any("error", err))
			return resultErr
		}
		body = detail
	case mirror.KindPayment:
		payment, err := j.Invoices.GetPayment(ctx, payload.ID)
		if err != nil {
			resultErr = err
			logger.Error("load payment for mirror", slog.Any("error", err))
			return resultErr
		}
		body = payment
	default:
		logger.Warn("unknown mirror kind")
		return asynq.SkipRetry
	}

	receipt, err := j.Mirror.Push(ctx, payload.Kind, body)
	if err != nil {
		resultErr = err
		logger.Error("mirror push", slog.Any("error", err))
		return resultErr
	}

	logger.Info("mirror push acknowledged",
		slog.String("receipt_id", receipt.ID),
		slog.Time("synced_at", receipt.SyncedAt),
	)
	return resultErr
}

func (j *MirrorPushJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
