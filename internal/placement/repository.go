package placement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewledger/crewledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for placements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const placementColumns = `
	p.id, p.customer_id, c.name, p.candidate_id, p.candidate_name,
	p.billing_cycle, p.regular_rate, p.overtime_rate, p.bill_rate,
	p.payment_terms, p.active, p.start_date, p.end_date,
	p.created_at, p.updated_at`

// GetPlacement retrieves a placement by ID regardless of active state.
func (r *Repository) GetPlacement(ctx context.Context, id int64) (Placement, error) {
	query := `SELECT` + placementColumns + `
		FROM placements p
		JOIN customers c ON c.id = p.customer_id
		WHERE p.id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	p, err := scanPlacement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Placement{}, shared.NotFoundf("placement %d", id)
	}
	return p, err
}

// ListActive returns all currently active placements.
func (r *Repository) ListActive(ctx context.Context) ([]Placement, error) {
	query := `SELECT` + placementColumns + `
		FROM placements p
		JOIN customers c ON c.id = p.customer_id
		WHERE p.active
		ORDER BY p.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var placements []Placement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, err
		}
		placements = append(placements, p)
	}
	return placements, rows.Err()
}

func scanPlacement(row pgx.Row) (Placement, error) {
	var p Placement
	var overtimeRate, billRate pgtype.Float8
	var endDate pgtype.Date

	err := row.Scan(
		&p.ID, &p.CustomerID, &p.CustomerName, &p.CandidateID, &p.CandidateName,
		&p.BillingCycle, &p.RegularRate, &overtimeRate, &billRate,
		&p.PaymentTerms, &p.Active, &p.StartDate, &endDate,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Placement{}, err
	}
	if overtimeRate.Valid {
		v := overtimeRate.Float64
		p.OvertimeRate = &v
	}
	if billRate.Valid {
		b := billRate.Float64
		p.BillRate = &b
	}
	if endDate.Valid {
		d := endDate.Time
		p.EndDate = &d
	}
	return p, nil
}
