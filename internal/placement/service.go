package placement

import (
	"context"

	"github.com/crewledger/crewledger/internal/shared"
)

// RepositoryPort defines data access methods for placements.
type RepositoryPort interface {
	GetPlacement(ctx context.Context, id int64) (Placement, error)
	ListActive(ctx context.Context) ([]Placement, error)
}

// Service handles placement lookups for the ledger core.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetActivePlacement returns the placement when it exists and is active.
// Inactive or missing placements fail with a not-found error: timesheets
// must never be opened against them.
func (s *Service) GetActivePlacement(ctx context.Context, id int64) (Placement, error) {
	p, err := s.repo.GetPlacement(ctx, id)
	if err != nil {
		return Placement{}, err
	}
	if !p.Active {
		return Placement{}, shared.NotFoundf("active placement %d", id)
	}
	return p, nil
}

// ListActive returns all active placements, used by the timesheet
// scheduler to open draft sheets at cycle boundaries.
func (s *Service) ListActive(ctx context.Context) ([]Placement, error) {
	return s.repo.ListActive(ctx)
}
