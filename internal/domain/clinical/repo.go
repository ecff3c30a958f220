package clinical

import (
	"context"
	"errors"
)

var (
	ErrRecordNotFound       = errors.New("medical record not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrMedicineNotFound     = errors.New("medicine not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
)

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id int64) (*MedicalRecord, error)
	ListByAppointment(ctx context.Context, appointmentID int64) ([]*MedicalRecord, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	AddItem(ctx context.Context, prescriptionID int64, item *Item) error
	GetByID(ctx context.Context, id int64) (*Prescription, error)
}

type StockRepository interface {
	// Decrement lowers a medicine's stock by qty. With floor set it refuses
	// to go below zero and returns ErrInsufficientStock.
	Decrement(ctx context.Context, medicineID int64, qty int, floor bool) error
}
