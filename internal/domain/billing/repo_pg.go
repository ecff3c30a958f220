package billing

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

// paymentStatusSQL derives the payment status; it is never stored.
const paymentStatusSQL = `CASE WHEN paid_date IS NOT NULL THEN 'Paid' ELSE 'Pending' END`

// Amounts are read as text so no precision is lost on the way to decimal.
const invoiceCols = `invoice_id, appointment_id, consultation_fee::text, prescription_cost::text,
	total_amount::text, to_char(invoice_date, 'YYYY-MM-DD'), to_char(paid_date, 'YYYY-MM-DD'),
	payment_method, ` + paymentStatusSQL

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var fee, cost, total string
	err := row.Scan(&inv.ID, &inv.AppointmentID, &fee, &cost, &total,
		&inv.InvoiceDate, &inv.PaidDate, &inv.PaymentMethod, &inv.PaymentStatus)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *Money
		raw string
	}{{&inv.ConsultationFee, fee}, {&inv.PrescriptionCost, cost}, {&inv.TotalAmount, total}} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", f.raw, err)
		}
		*f.dst = NewMoney(d)
	}
	return &inv, nil
}

func (r *repoPG) PrescriptionCost(ctx context.Context, appointmentID int64) (decimal.Decimal, error) {
	var raw string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(pi.quantity * m.unit_price), 0)::text
		FROM medical_record mr
		JOIN prescription p ON p.record_id = mr.record_id
		JOIN prescription_item pi ON pi.prescription_id = p.prescription_id
		JOIN medicine m ON m.medicine_id = pi.medicine_id
		WHERE mr.appointment_id = $1`, appointmentID).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice (appointment_id, consultation_fee, prescription_cost, total_amount,
			paid_date, payment_method)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::date, $6)
		RETURNING `+invoiceCols,
		inv.AppointmentID,
		inv.ConsultationFee.StringFixed(2),
		inv.PrescriptionCost.StringFixed(2),
		inv.TotalAmount.StringFixed(2),
		inv.PaidDate, inv.PaymentMethod)
	created, err := scanInvoice(row)
	if err != nil {
		return err
	}
	*inv = *created
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoice WHERE invoice_id = $1`, id))
}

var pg = goqu.Dialect("postgres")

func listWhere(f ListFilter) []exp.Expression {
	var where []exp.Expression
	if f.AppointmentID != 0 {
		where = append(where, goqu.C("appointment_id").Eq(f.AppointmentID))
	}
	switch f.PaymentStatus {
	case PaymentPaid:
		where = append(where, goqu.C("paid_date").IsNotNull())
	case PaymentPending:
		where = append(where, goqu.C("paid_date").IsNull())
	}
	return where
}

// listSQL renders the page query and the matching count query.
func listSQL(f ListFilter) (page string, pageArgs []interface{}, count string, countArgs []interface{}, err error) {
	where := listWhere(f)
	page, pageArgs, err = pg.From("invoice").Prepared(true).
		Select(goqu.L(invoiceCols)).
		Where(where...).
		Order(goqu.C("invoice_date").Desc(), goqu.C("invoice_id").Desc()).
		Limit(uint(f.Limit)).
		Offset(uint(f.Offset)).
		ToSQL()
	if err != nil {
		return
	}
	count, countArgs, err = pg.From("invoice").Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		ToSQL()
	return
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Invoice, int, error) {
	page, pageArgs, count, countArgs, err := listSQL(f)
	if err != nil {
		return nil, 0, fmt.Errorf("build invoice listing: %w", err)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, count, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, page, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) MarkPaid(ctx context.Context, id int64, method string, paidDate *string) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `
		UPDATE invoice SET paid_date = COALESCE($2::date, CURRENT_DATE), payment_method = $3
		WHERE invoice_id = $1
		RETURNING `+invoiceCols, id, paidDate, method))
}

func (r *repoPG) MarkUnpaid(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `
		UPDATE invoice SET paid_date = NULL, payment_method = NULL
		WHERE invoice_id = $1
		RETURNING `+invoiceCols, id))
}
