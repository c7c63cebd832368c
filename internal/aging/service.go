package aging

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crewledger/crewledger/internal/shared"
)

// RepositoryPort defines data access methods for the aging engine.
type RepositoryPort interface {
	ListOpenInvoices(ctx context.Context) ([]OpenInvoice, error)
}

// Service builds aging reports through the versioned cache.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	sf     singleflight.Group
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Report returns the aging report as of the given date. Concurrent
// requests for the same date collapse into one build.
func (s *Service) Report(ctx context.Context, asOf time.Time) (*Report, error) {
	if asOf.IsZero() {
		return nil, shared.Validationf("as-of date is required")
	}
	asOf = shared.TruncateDay(asOf)

	key, err := s.cache.BuildKey(ctx, keyReport(asOf)...)
	if err != nil {
		return nil, err
	}

	result, err, _ := s.sf.Do(key, func() (any, error) {
		var report Report
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			invoices, err := s.repo.ListOpenInvoices(ctx)
			if err != nil {
				return nil, err
			}
			return Build(asOf, invoices)
		})
		if err != nil {
			return nil, err
		}
		return &report, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Report), nil
}
