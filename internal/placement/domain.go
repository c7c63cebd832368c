package placement

import (
	"time"

	"github.com/crewledger/crewledger/internal/shared"
)

// Placement binds a candidate to a customer engagement with agreed rates.
// Timesheets may only be opened against an active placement.
type Placement struct {
	ID            int64
	CustomerID    int64
	CustomerName  string
	CandidateID   int64
	CandidateName string
	BillingCycle  shared.BillingCycle
	RegularRate   float64
	OvertimeRate  *float64
	BillRate      *float64
	PaymentTerms  string
	Active        bool
	StartDate     time.Time
	EndDate       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
