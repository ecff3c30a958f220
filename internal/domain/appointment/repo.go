package appointment

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("appointment not found")

type Repository interface {
	// SlotTaken reports whether a non-cancelled appointment other than
	// excludeID holds slot. Pass 0 to exclude nothing.
	SlotTaken(ctx context.Context, slot Slot, excludeID int64) (bool, error)
	Create(ctx context.Context, a *Appointment) error
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	// SetStatus writes status and returns the previous one.
	SetStatus(ctx context.Context, id int64, status Status) (Status, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id int64) error
	GetDetail(ctx context.Context, id int64) (*Detail, error)
	ListDetails(ctx context.Context, f ListFilter) ([]*Detail, error)
}
