package billing

import (
	"strings"
	"testing"
)

func TestListSQL(t *testing.T) {
	page, pageArgs, count, countArgs, err := listSQL(ListFilter{AppointmentID: 4, PaymentStatus: PaymentPaid, Limit: 20, Offset: 40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, frag := range []string{
		`"appointment_id" = $1`,
		`"paid_date" IS NOT NULL`,
		"CASE WHEN paid_date IS NOT NULL THEN 'Paid' ELSE 'Pending' END",
		`ORDER BY "invoice_date" DESC, "invoice_id" DESC`,
		"LIMIT",
		"OFFSET",
	} {
		if !strings.Contains(page, frag) {
			t.Errorf("expected %q in %s", frag, page)
		}
	}
	if len(pageArgs) == 0 || pageArgs[0] != int64(4) {
		t.Errorf("unexpected page args %v", pageArgs)
	}

	if !strings.Contains(count, `COUNT(*)`) || strings.Contains(count, "LIMIT") {
		t.Errorf("unexpected count query %s", count)
	}
	if len(countArgs) != 1 {
		t.Errorf("unexpected count args %v", countArgs)
	}
}

func TestListSQL_Pending(t *testing.T) {
	page, _, _, _, err := listSQL(ListFilter{PaymentStatus: PaymentPending, Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(page, `"paid_date" IS NULL`) {
		t.Errorf("expected pending filter in %s", page)
	}
}
