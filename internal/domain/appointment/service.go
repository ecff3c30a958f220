package appointment

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

const (
	aggregateType = "appointment"
	slotIndex     = "uq_appointment_slot"
)

// fkFields maps foreign key constraint names to the request field that
// carried the dangling reference.
var fkFields = map[string]string{
	"appointment_staff_id_fkey":   "staffId",
	"appointment_patient_ic_fkey": "patientIC",
	"appointment_doctor_id_fkey":  "doctorId",
	"appointment_room_id_fkey":    "roomId",
}

type Options struct {
	// StrictTransitions checks status changes against the transition table.
	// When false any known status may be written.
	StrictTransitions bool
}

type Service struct {
	repo    Repository
	tx      db.Transactor
	pub     events.Publisher
	metrics *telemetry.Metrics
	opts    Options
}

func NewService(repo Repository, tx db.Transactor, pub events.Publisher, opts Options) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{repo: repo, tx: tx, pub: pub, metrics: telemetry.Global(), opts: opts}
}

// appointmentFrom checks the required booking fields and normalizes the
// date and time.
func appointmentFrom(req *BookRequest) (*Appointment, error) {
	if missing := req.missingFields(); len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	date, err := NormalizeDate(req.AppointmentDate)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	clock, err := NormalizeClock(req.AppointmentTime)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return &Appointment{
		StaffID:       req.StaffID,
		PatientIC:     strings.TrimSpace(req.PatientIC),
		DoctorID:      req.DoctorID,
		RoomID:        req.RoomID,
		Date:          date,
		Time:          clock,
		ReasonToVisit: req.ReasonToVisit,
	}, nil
}

func (s *Service) slotConflict(ctx context.Context) error {
	s.metrics.BookingConflicts.Add(ctx, 1)
	return apperr.Conflict("slot already booked")
}

// storeError translates repository and driver errors into apperr values.
func (s *Service) storeError(ctx context.Context, err error, msg string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("appointment not found")
	}
	if db.IsUniqueViolation(err) && db.IsConstraint(err, slotIndex) {
		return s.slotConflict(ctx)
	}
	if db.IsForeignKeyViolation(err) {
		pgErr, _ := db.PgError(err)
		field, ok := fkFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ConstraintName
		}
		ae := apperr.Validation("%s does not reference an existing record", field)
		ae.Fields = []string{field}
		return ae
	}
	if db.IsCheckViolation(err) || db.IsNotNullViolation(err) {
		return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid appointment", Err: err}
	}
	return apperr.Internal(msg, err)
}

func parseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.MissingFields("status")
	}
	st, ok := ParseStatus(raw)
	if !ok {
		return "", apperr.Validation("invalid status %q", raw)
	}
	return st, nil
}

// Book creates a Scheduled appointment. The slot check and the insert share
// a transaction, and the partial unique index settles concurrent bookings.
func (s *Service) Book(ctx context.Context, req *BookRequest) (a *Appointment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "appointment.Book")
	defer func() { telemetry.End(span, err) }()

	a, err = appointmentFrom(req)
	if err != nil {
		return nil, err
	}
	a.Status = StatusScheduled

	err = s.tx.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context) error {
		taken, err := s.repo.SlotTaken(ctx, a.Slot(), 0)
		if err != nil {
			return err
		}
		if taken {
			return s.slotConflict(ctx)
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "failed to book appointment")
	}

	s.metrics.Bookings.Add(ctx, 1)
	events.Emit(ctx, s.pub, events.New(events.AppointmentBooked, aggregateType, a.ID, a))
	return a, nil
}

// StatusChange is the result of a status update.
type StatusChange struct {
	AppointmentID  int64  `json:"appointmentId"`
	PreviousStatus Status `json:"previousStatus"`
	Status         Status `json:"status"`
}

// ChangeStatus moves appointment id to raw. In strict mode the move must be
// an edge of the transition table. Leaving Cancelled re-claims the slot, so
// it fails when another appointment holds it.
func (s *Service) ChangeStatus(ctx context.Context, id int64, raw string) (change *StatusChange, err error) {
	ctx, span := telemetry.StartSpan(ctx, "appointment.ChangeStatus",
		attribute.Int64("appointment.id", id))
	defer func() { telemetry.End(span, err) }()

	next, err := parseStatus(raw)
	if err != nil {
		return nil, err
	}

	change = &StatusChange{AppointmentID: id, Status: next}
	err = s.tx.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s.opts.StrictTransitions && !cur.Status.CanTransitionTo(next) {
			return apperr.Validation("invalid status transition from %s to %s", cur.Status, next)
		}
		if cur.Status == next {
			change.PreviousStatus = cur.Status
			return nil
		}
		if !cur.Status.HoldsSlot() && next.HoldsSlot() {
			taken, err := s.repo.SlotTaken(ctx, cur.Slot(), id)
			if err != nil {
				return err
			}
			if taken {
				return s.slotConflict(ctx)
			}
		}
		prev, err := s.repo.SetStatus(ctx, id, next)
		change.PreviousStatus = prev
		return err
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "failed to update appointment status")
	}

	if change.PreviousStatus != change.Status {
		s.metrics.StatusTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(change.PreviousStatus)),
			attribute.String("to", string(change.Status)),
		))
		events.Emit(ctx, s.pub, events.New(events.AppointmentStatusChanged, aggregateType, id, change))
	}
	return change, nil
}

// Update replaces every editable field of appointment id. A nil Status
// keeps the current one.
func (s *Service) Update(ctx context.Context, id int64, req *UpdateRequest) (a *Appointment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "appointment.Update",
		attribute.Int64("appointment.id", id))
	defer func() { telemetry.End(span, err) }()

	a, err = appointmentFrom(&req.BookRequest)
	if err != nil {
		return nil, err
	}
	a.ID = id

	var next Status
	if req.Status != nil {
		if next, err = parseStatus(*req.Status); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		a.Status = cur.Status
		a.CreatedAt = cur.CreatedAt
		if next != "" {
			if s.opts.StrictTransitions && !cur.Status.CanTransitionTo(next) {
				return apperr.Validation("invalid status transition from %s to %s", cur.Status, next)
			}
			a.Status = next
		}
		if a.Status.HoldsSlot() {
			taken, err := s.repo.SlotTaken(ctx, a.Slot(), id)
			if err != nil {
				return err
			}
			if taken {
				return s.slotConflict(ctx)
			}
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "failed to update appointment")
	}

	events.Emit(ctx, s.pub, events.New(events.AppointmentUpdated, aggregateType, id, a))
	return a, nil
}

// Delete removes the appointment. Medical records and invoices that point
// at it are kept with a null reference.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storeError(ctx, err, "failed to delete appointment")
	}
	events.Emit(ctx, s.pub, events.New(events.AppointmentDeleted, aggregateType, id, nil))
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	d, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, err, "failed to fetch appointment")
	}
	return d, nil
}

// List returns the joined listing, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Detail, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("invalid status %q", f.Status)
	}
	items, err := s.repo.ListDetails(ctx, f)
	if err != nil {
		return nil, s.storeError(ctx, err, "failed to fetch appointments")
	}
	return items, nil
}

func (s *Service) ListByDate(ctx context.Context, date string) ([]*Detail, error) {
	d, err := NormalizeDate(date)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return s.List(ctx, ListFilter{Date: d})
}
