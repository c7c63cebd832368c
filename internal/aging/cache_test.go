package aging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	calls    int
	invoices []OpenInvoice
}

func (r *countingRepo) ListOpenInvoices(ctx context.Context) ([]OpenInvoice, error) {
	r.calls++
	return r.invoices, nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestReportServedFromCache(t *testing.T) {
	repo := &countingRepo{invoices: []OpenInvoice{
		{InvoiceID: 1, CustomerID: 10, DueDate: day("2024-01-15"), AmountDue: 500},
	}}
	svc := NewService(repo, newTestCache(t), nil)

	first, err := svc.Report(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	second, err := svc.Report(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)
	require.InDelta(t, first.TotalOutstanding, second.TotalOutstanding, 1e-9)

	// A different as-of date misses the cache.
	_, err = svc.Report(context.Background(), day("2024-03-02"))
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestBumpInvalidatesCache(t *testing.T) {
	repo := &countingRepo{}
	cache := newTestCache(t)
	svc := NewService(repo, cache, nil)

	_, err := svc.Report(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, cache.Bump(context.Background()))

	_, err = svc.Report(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestNilCachePassesThrough(t *testing.T) {
	repo := &countingRepo{invoices: []OpenInvoice{
		{InvoiceID: 1, CustomerID: 10, DueDate: day("2024-01-15"), AmountDue: 500},
	}}
	svc := NewService(repo, nil, nil)

	report, err := svc.Report(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.InDelta(t, 500, report.TotalOutstanding, 1e-9)
	require.Equal(t, 1, repo.calls)

	_, err = svc.Report(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}
