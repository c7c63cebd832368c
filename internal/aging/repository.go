package aging

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads open-invoice snapshots for the aging engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOpenInvoices returns every invoice still awaiting collection. Each
// row is a single-row snapshot; cross-invoice consistency at one instant
// is not required for aging.
func (r *Repository) ListOpenInvoices(ctx context.Context) ([]OpenInvoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, customer_id, due_date, amount_due, status
		FROM invoices
		WHERE status NOT IN ('PAID', 'VOID')
		ORDER BY due_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []OpenInvoice
	for rows.Next() {
		var inv OpenInvoice
		if err := rows.Scan(&inv.InvoiceID, &inv.Number, &inv.CustomerID, &inv.DueDate, &inv.AmountDue, &inv.Status); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
