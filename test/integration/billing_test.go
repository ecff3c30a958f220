//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
)

func TestInvoice_TotalIncludesPrescriptionCost(t *testing.T) {
	ctx := context.Background()
	svc := newServices(true, true)
	a := book(t, ctx, svc, createPatient(t, ctx), createDoctor(t, ctx), "2025-08-01", "10:00")
	rec := createRecord(t, ctx, svc, a.ID)

	para := createMedicine(t, ctx, "Paracetamol", "3.50", 100)
	amox := createMedicine(t, ctx, "Amoxicillin", "10.00", 20)
	_, err := svc.clinical.CreatePrescription(ctx, &clinical.PrescriptionRequest{
		RecordID: rec.ID,
		Items: []*clinical.ItemRequest{
			{MedicineID: para, Quantity: 2},
			{MedicineID: amox, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create prescription: %v", err)
	}

	cost, err := svc.billing.PrescriptionCost(ctx, a.ID)
	if err != nil {
		t.Fatalf("prescription cost: %v", err)
	}
	if !cost.Equal(decimal.RequireFromString("17.00")) {
		t.Errorf("expected cost 17.00, got %s", cost)
	}

	fee := billing.NewMoney(decimal.RequireFromString("50.00"))
	inv, err := svc.billing.CreateInvoice(ctx, &billing.InvoiceRequest{
		AppointmentID:   a.ID,
		ConsultationFee: &fee,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if got := inv.TotalAmount.StringFixed(2); got != "67.00" {
		t.Errorf("expected total 67.00, got %s", got)
	}
	if inv.PaymentStatus != billing.PaymentPending {
		t.Errorf("expected Pending, got %s", inv.PaymentStatus)
	}
}

func TestInvoice_PaidUnpaidToggle(t *testing.T) {
	ctx := context.Background()
	svc := newServices(true, true)
	a := book(t, ctx, svc, createPatient(t, ctx), createDoctor(t, ctx), "2025-08-02", "10:00")

	fee := billing.NewMoney(decimal.RequireFromString("30.00"))
	inv, err := svc.billing.CreateInvoice(ctx, &billing.InvoiceRequest{
		AppointmentID:   a.ID,
		ConsultationFee: &fee,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if got := inv.TotalAmount.StringFixed(2); got != "30.00" {
		t.Errorf("expected total 30.00 without prescriptions, got %s", got)
	}

	paid, err := svc.billing.MarkPaid(ctx, inv.ID, &billing.PayRequest{
		PaymentMethod: "Card",
		PaidDate:      ptrStr("2025-08-03"),
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.PaymentStatus != billing.PaymentPaid || paid.PaidDate == nil || *paid.PaidDate != "2025-08-03" {
		t.Errorf("unexpected paid invoice: %+v", paid)
	}

	unpaid, err := svc.billing.MarkUnpaid(ctx, inv.ID)
	if err != nil {
		t.Fatalf("mark unpaid: %v", err)
	}
	if unpaid.PaymentStatus != billing.PaymentPending || unpaid.PaidDate != nil || unpaid.PaymentMethod != nil {
		t.Errorf("unexpected unpaid invoice: %+v", unpaid)
	}

	list, total, err := svc.billing.ListInvoices(ctx, billing.ListFilter{AppointmentID: a.ID, Limit: 10})
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Errorf("expected one invoice, got %d (%d)", len(list), total)
	}
}
