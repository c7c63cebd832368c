// Package mirror integrates with the external accounting ledger that
// mirrors local invoices and payments. The local ledger is the system of
// record: pushes are fire-and-forget and a failed push never rolls back
// local state.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Push kinds accepted by the mirror queue.
const (
	KindInvoice = "invoice"
	KindPayment = "payment"
)

// Receipt acknowledges a successful mirror sync.
type Receipt struct {
	ID       string    `json:"id"`
	SyncedAt time.Time `json:"synced_at"`
}

// Pusher schedules invoice/payment pushes toward the external mirror.
type Pusher interface {
	PushInvoice(ctx context.Context, invoiceID int64)
	PushPayment(ctx context.Context, paymentID int64)
}

// Enqueuer submits mirror push tasks to the background queue.
type Enqueuer interface {
	EnqueueMirrorPush(ctx context.Context, kind string, id int64) error
}

// AsyncPusher enqueues pushes for the worker to deliver. Enqueue failures
// are logged and swallowed.
type AsyncPusher struct {
	Enqueuer Enqueuer
	Logger   *slog.Logger
}

// PushInvoice implements Pusher.
func (p *AsyncPusher) PushInvoice(ctx context.Context, invoiceID int64) {
	p.enqueue(ctx, KindInvoice, invoiceID)
}

// PushPayment implements Pusher.
func (p *AsyncPusher) PushPayment(ctx context.Context, paymentID int64) {
	p.enqueue(ctx, KindPayment, paymentID)
}

func (p *AsyncPusher) enqueue(ctx context.Context, kind string, id int64) {
	if p == nil || p.Enqueuer == nil {
		return
	}
	if err := p.Enqueuer.EnqueueMirrorPush(ctx, kind, id); err != nil && p.Logger != nil {
		p.Logger.Warn("enqueue mirror push",
			slog.String("kind", kind),
			slog.Int64("id", id),
			slog.Any("error", err),
		)
	}
}

// NopPusher discards pushes. Used when MIRROR_URL is unset and in tests.
type NopPusher struct{}

// PushInvoice implements Pusher.
func (NopPusher) PushInvoice(ctx context.Context, invoiceID int64) {}

// PushPayment implements Pusher.
func (NopPusher) PushPayment(ctx context.Context, paymentID int64) {}

// Client performs the actual HTTP delivery toward the mirror endpoint.
// It lives on the worker side of the queue.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a mirror client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Push delivers one entity payload and returns the mirror's receipt.
func (c *Client) Push(ctx context.Context, kind string, payload any) (Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, err
	}
	url := fmt.Sprintf("%s/%ss", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Receipt{}, fmt.Errorf("mirror push %s: status %d", kind, resp.StatusCode)
	}
	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}
