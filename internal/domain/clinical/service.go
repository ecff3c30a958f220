package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

type Options struct {
	// AllowNegativeStock lets a prescription drive stock below zero.
	AllowNegativeStock bool
}

type Service struct {
	records       RecordRepository
	prescriptions PrescriptionRepository
	stock         StockRepository
	tx            db.Transactor
	pub           events.Publisher
	metrics       *telemetry.Metrics
	opts          Options
}

func NewService(rec RecordRepository, rx PrescriptionRepository, stock StockRepository, tx db.Transactor, pub events.Publisher, opts Options) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{
		records:       rec,
		prescriptions: rx,
		stock:         stock,
		tx:            tx,
		pub:           pub,
		metrics:       telemetry.Global(),
		opts:          opts,
	}
}

func unknownRef(field string) *apperr.Error {
	ae := apperr.Validation("%s does not reference an existing record", field)
	ae.Fields = []string{field}
	return ae
}

// -- Medical record --

func (s *Service) CreateRecord(ctx context.Context, req *RecordRequest) (*MedicalRecord, error) {
	if req.AppointmentID == 0 {
		return nil, apperr.MissingFields("appointmentId")
	}
	m := &MedicalRecord{
		AppointmentID: &req.AppointmentID,
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
	}
	if req.RecordDate != nil && strings.TrimSpace(*req.RecordDate) != "" {
		d, err := appointment.NormalizeDate(*req.RecordDate)
		if err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		m.RecordDate = d
	}

	if err := s.records.Create(ctx, m); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, unknownRef("appointmentId")
		}
		return nil, apperr.Internal("failed to create medical record", err)
	}
	return m, nil
}

func (s *Service) GetRecord(ctx context.Context, id int64) (*MedicalRecord, error) {
	m, err := s.records.GetByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, apperr.NotFound("medical record not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to fetch medical record", err)
	}
	return m, nil
}

func (s *Service) ListRecordsByAppointment(ctx context.Context, appointmentID int64) ([]*MedicalRecord, error) {
	items, err := s.records.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, apperr.Internal("failed to fetch medical records", err)
	}
	return items, nil
}

// -- Prescription --

func checkItems(items []*ItemRequest) error {
	if len(items) == 0 {
		return apperr.MissingFields("items")
	}
	var missing []string
	for i, it := range items {
		if it == nil {
			missing = append(missing, fmt.Sprintf("items[%d]", i))
			continue
		}
		if it.MedicineID == 0 {
			missing = append(missing, fmt.Sprintf("items[%d].medicineId", i))
		}
		if it.Quantity == 0 {
			missing = append(missing, fmt.Sprintf("items[%d].quantity", i))
		}
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	for i, it := range items {
		if it.Quantity < 0 {
			ae := apperr.Validation("items[%d].quantity must be greater than zero", i)
			ae.Fields = []string{fmt.Sprintf("items[%d].quantity", i)}
			return ae
		}
	}
	return nil
}

// CreatePrescription writes the prescription, its items in order and the
// matching stock decrements in one transaction. Any failure leaves no trace.
func (s *Service) CreatePrescription(ctx context.Context, req *PrescriptionRequest) (p *Prescription, err error) {
	ctx, span := telemetry.StartSpan(ctx, "clinical.CreatePrescription",
		attribute.Int64("record.id", req.RecordID),
		attribute.Int("items", len(req.Items)))
	defer func() { telemetry.End(span, err) }()

	if req.RecordID == 0 {
		return nil, apperr.MissingFields("recordId")
	}
	if err := checkItems(req.Items); err != nil {
		return nil, err
	}

	floor := !s.opts.AllowNegativeStock
	err = s.tx.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context) error {
		p = &Prescription{RecordID: req.RecordID, Instruction: req.Instruction}
		if err := s.prescriptions.Create(ctx, p); err != nil {
			if db.IsForeignKeyViolation(err) {
				return unknownRef("recordId")
			}
			return err
		}

		p.Items = make([]*Item, 0, len(req.Items))
		for i, in := range req.Items {
			item := &Item{
				MedicineID: in.MedicineID,
				Quantity:   in.Quantity,
				Dosage:     in.Dosage,
				Position:   i + 1,
			}
			if err := s.prescriptions.AddItem(ctx, p.ID, item); err != nil {
				if db.IsForeignKeyViolation(err) {
					return unknownRef(fmt.Sprintf("items[%d].medicineId", i))
				}
				return err
			}
			switch err := s.stock.Decrement(ctx, in.MedicineID, in.Quantity, floor); {
			case errors.Is(err, ErrMedicineNotFound):
				return unknownRef(fmt.Sprintf("items[%d].medicineId", i))
			case errors.Is(err, ErrInsufficientStock):
				return apperr.Conflict("insufficient stock for medicine %d", in.MedicineID)
			case err != nil:
				return err
			}
			p.Items = append(p.Items, item)
		}
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		if db.IsCheckViolation(err) {
			return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "invalid prescription item", Err: err}
		}
		return nil, apperr.Internal("failed to create prescription", err)
	}

	s.metrics.PrescriptionItems.Add(ctx, int64(len(p.Items)))
	events.Emit(ctx, s.pub, events.New(events.PrescriptionCreated, "prescription", p.ID, p))
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id int64) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if errors.Is(err, ErrPrescriptionNotFound) {
		return nil, apperr.NotFound("prescription not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to fetch prescription", err)
	}
	return p, nil
}
