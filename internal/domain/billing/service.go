package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

const aggregateType = "invoice"

type Service struct {
	repo    Repository
	tx      db.Transactor
	pub     events.Publisher
	metrics *telemetry.Metrics
}

func NewService(repo Repository, tx db.Transactor, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{repo: repo, tx: tx, pub: pub, metrics: telemetry.Global()}
}

func storeError(err error, msg string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("invoice not found")
	}
	if db.IsForeignKeyViolation(err) {
		ae := apperr.Validation("appointmentId does not reference an existing record")
		ae.Fields = []string{"appointmentId"}
		return ae
	}
	if db.IsCheckViolation(err) {
		return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid invoice amounts", Err: err}
	}
	return apperr.Internal(msg, err)
}

func optionalDate(s *string) (*string, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := appointment.NormalizeDate(*s)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return &d, nil
}

// PrescriptionCost is zero for appointments without prescriptions.
func (s *Service) PrescriptionCost(ctx context.Context, appointmentID int64) (decimal.Decimal, error) {
	cost, err := s.repo.PrescriptionCost(ctx, appointmentID)
	if err != nil {
		return decimal.Zero, storeError(err, "failed to compute prescription cost")
	}
	return cost, nil
}

// CreateInvoice totals the consultation fee and the current prescription
// cost. The amounts are fixed at creation; later prescriptions do not
// change the invoice.
func (s *Service) CreateInvoice(ctx context.Context, req *InvoiceRequest) (inv *Invoice, err error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.CreateInvoice",
		attribute.Int64("appointment.id", req.AppointmentID))
	defer func() { telemetry.End(span, err) }()

	var missing []string
	if req.AppointmentID == 0 {
		missing = append(missing, "appointmentId")
	}
	if req.ConsultationFee == nil {
		missing = append(missing, "consultationFee")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	fee := req.ConsultationFee.Decimal
	if fee.IsNegative() {
		return nil, apperr.Validation("consultationFee must not be negative")
	}
	paidDate, err := optionalDate(req.PaidDate)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context) error {
		cost, err := s.repo.PrescriptionCost(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		inv = &Invoice{
			AppointmentID:    &req.AppointmentID,
			ConsultationFee:  NewMoney(fee),
			PrescriptionCost: NewMoney(cost),
			TotalAmount:      NewMoney(fee.Add(cost)),
			PaidDate:         paidDate,
			PaymentMethod:    req.PaymentMethod,
		}
		return s.repo.Create(ctx, inv)
	})
	if err != nil {
		return nil, storeError(err, "failed to create invoice")
	}

	s.metrics.InvoicedAmount.Add(ctx, inv.TotalAmount.InexactFloat64())
	events.Emit(ctx, s.pub, events.New(events.InvoiceCreated, aggregateType, inv.ID, inv))
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to fetch invoice")
	}
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, f ListFilter) ([]*Invoice, int, error) {
	switch f.PaymentStatus {
	case "", PaymentPaid, PaymentPending:
	default:
		return nil, 0, apperr.Validation("invalid paymentStatus %q", f.PaymentStatus)
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, storeError(err, "failed to fetch invoices")
	}
	return items, total, nil
}

func (s *Service) MarkPaid(ctx context.Context, id int64, req *PayRequest) (*Invoice, error) {
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, apperr.MissingFields("paymentMethod")
	}
	paidDate, err := optionalDate(req.PaidDate)
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.MarkPaid(ctx, id, method, paidDate)
	if err != nil {
		return nil, storeError(err, "failed to mark invoice paid")
	}
	events.Emit(ctx, s.pub, events.New(events.InvoicePaid, aggregateType, id, inv))
	return inv, nil
}

func (s *Service) MarkUnpaid(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.MarkUnpaid(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to mark invoice unpaid")
	}
	events.Emit(ctx, s.pub, events.New(events.InvoiceUnpaid, aggregateType, id, inv))
	return inv, nil
}
