package billing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("invoice not found")

type Repository interface {
	// PrescriptionCost sums quantity times unit price over every item of
	// every prescription linked to the appointment's medical records.
	PrescriptionCost(ctx context.Context, appointmentID int64) (decimal.Decimal, error)
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, f ListFilter) ([]*Invoice, int, error)
	// MarkPaid sets paid date and method. A nil paidDate means today.
	MarkPaid(ctx context.Context, id int64, method string, paidDate *string) (*Invoice, error)
	MarkUnpaid(ctx context.Context, id int64) (*Invoice, error)
}
