package billing

import (
	"github.com/shopspring/decimal"
)

const (
	PaymentPaid    = "Paid"
	PaymentPending = "Pending"
)

// Money is an amount with two decimal places. It marshals as a JSON number.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(2)}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Decimal.UnmarshalJSON(b)
}

// Invoice maps to the invoice table. PaymentStatus is derived from PaidDate
// and never stored.
type Invoice struct {
	ID               int64   `json:"invoiceId"`
	AppointmentID    *int64  `json:"appointmentId"`
	ConsultationFee  Money   `json:"consultationFee"`
	PrescriptionCost Money   `json:"prescriptionCost"`
	TotalAmount      Money   `json:"totalAmount"`
	InvoiceDate      string  `json:"invoiceDate"`
	PaidDate         *string `json:"paidDate"`
	PaymentMethod    *string `json:"paymentMethod"`
	PaymentStatus    string  `json:"paymentStatus"`
}

// DerivePaymentStatus mirrors the SQL projection used on reads.
func DerivePaymentStatus(paidDate *string) string {
	if paidDate != nil {
		return PaymentPaid
	}
	return PaymentPending
}

// InvoiceRequest is the body of POST /api/invoice.
type InvoiceRequest struct {
	AppointmentID   int64   `json:"appointmentId" validate:"required"`
	ConsultationFee *Money  `json:"consultationFee" validate:"required"`
	PaymentMethod   *string `json:"paymentMethod"`
	PaidDate        *string `json:"paidDate"`
}

// PayRequest is the body of PATCH /api/invoice/:id/pay. PaidDate defaults
// to today.
type PayRequest struct {
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	PaidDate      *string `json:"paidDate"`
}

// ListFilter narrows the invoice listing. Zero values mean no filter.
type ListFilter struct {
	AppointmentID int64
	PaymentStatus string
	Limit         int
	Offset        int
}
