package appointment

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const apptCols = `appointment_id, staff_id, patient_ic, doctor_id, room_id,
	to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI'),
	reason_to_visit, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.StaffID, &a.PatientIC, &a.DoctorID, &a.RoomID,
		&a.Date, &a.Time, &a.ReasonToVisit, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) SlotTaken(ctx context.Context, slot Slot, excludeID int64) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND appointment_date = $2::date AND appointment_time = $3::time
			  AND status <> 'Cancelled' AND appointment_id <> $4
		)`, slot.DoctorID, slot.Date, slot.Time, excludeID).Scan(&taken)
	return taken, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (staff_id, patient_ic, doctor_id, room_id,
			appointment_date, appointment_time, reason_to_visit, status)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8)
		RETURNING appointment_id, created_at, updated_at`,
		a.StaffID, a.PatientIC, a.DoctorID, a.RoomID, a.Date, a.Time, a.ReasonToVisit, a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE appointment_id = $1 FOR UPDATE`, id))
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, status Status) (Status, error) {
	var prev Status
	err := r.conn(ctx).QueryRow(ctx, `
		WITH prev AS (
			SELECT appointment_id, status FROM appointment WHERE appointment_id = $1 FOR UPDATE
		)
		UPDATE appointment a SET status = $2, updated_at = NOW()
		FROM prev WHERE a.appointment_id = prev.appointment_id
		RETURNING prev.status`, id, status).Scan(&prev)
	if db.IsNoRows(err) {
		return "", ErrNotFound
	}
	return prev, err
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET staff_id = $2, patient_ic = $3, doctor_id = $4, room_id = $5,
			appointment_date = $6::date, appointment_time = $7::time, reason_to_visit = $8,
			status = $9, updated_at = NOW()
		WHERE appointment_id = $1
		RETURNING updated_at`,
		a.ID, a.StaffID, a.PatientIC, a.DoctorID, a.RoomID, a.Date, a.Time, a.ReasonToVisit, a.Status,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE appointment_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var pg = goqu.Dialect("postgres")

// detailQuery is the joined listing. Staff and room are optional, so they
// are outer joined.
func detailQuery() *goqu.SelectDataset {
	return pg.From(goqu.T("appointment").As("a")).
		Prepared(true).
		Select(
			goqu.I("a.appointment_id"),
			goqu.I("a.staff_id"),
			goqu.I("a.patient_ic"),
			goqu.I("a.doctor_id"),
			goqu.I("a.room_id"),
			goqu.L("to_char(a.appointment_date, 'YYYY-MM-DD')").As("appointment_date"),
			goqu.L("to_char(a.appointment_time, 'HH24:MI')").As("appointment_time"),
			goqu.I("a.reason_to_visit"),
			goqu.I("a.status"),
			goqu.I("a.created_at"),
			goqu.I("a.updated_at"),
			goqu.L("p.first_name || ' ' || p.last_name").As("patient_name"),
			goqu.I("p.phone"),
			goqu.L("d.first_name || ' ' || d.last_name").As("doctor_name"),
			goqu.L("CASE WHEN s.staff_id IS NULL THEN NULL ELSE s.first_name || ' ' || s.last_name END").As("staff_name"),
			goqu.I("r.room_type"),
		).
		Join(goqu.T("patient").As("p"), goqu.On(goqu.I("p.patient_ic").Eq(goqu.I("a.patient_ic")))).
		Join(goqu.T("doctor").As("d"), goqu.On(goqu.I("d.doctor_id").Eq(goqu.I("a.doctor_id")))).
		LeftJoin(goqu.T("staff").As("s"), goqu.On(goqu.I("s.staff_id").Eq(goqu.I("a.staff_id")))).
		LeftJoin(goqu.T("room").As("r"), goqu.On(goqu.I("r.room_id").Eq(goqu.I("a.room_id"))))
}

func filterExpressions(f ListFilter) []exp.Expression {
	var where []exp.Expression
	if f.DoctorID != 0 {
		where = append(where, goqu.I("a.doctor_id").Eq(f.DoctorID))
	}
	if f.PatientIC != "" {
		where = append(where, goqu.I("a.patient_ic").Eq(f.PatientIC))
	}
	if f.Status != "" {
		where = append(where, goqu.I("a.status").Eq(string(f.Status)))
	}
	if f.Date != "" {
		where = append(where, goqu.L("a.appointment_date = ?::date", f.Date))
	}
	return where
}

// listSQL renders the listing for f, newest first.
func listSQL(f ListFilter) (string, []interface{}, error) {
	ds := detailQuery().
		Where(filterExpressions(f)...).
		Order(goqu.I("a.appointment_date").Desc(), goqu.I("a.appointment_time").Desc(), goqu.I("a.appointment_id").Desc())
	return ds.ToSQL()
}

func detailSQL(id int64) (string, []interface{}, error) {
	return detailQuery().Where(goqu.I("a.appointment_id").Eq(id)).ToSQL()
}

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	err := row.Scan(&d.ID, &d.StaffID, &d.PatientIC, &d.DoctorID, &d.RoomID,
		&d.Date, &d.Time, &d.ReasonToVisit, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.PatientName, &d.PatientPhone, &d.DoctorName, &d.StaffName, &d.RoomType)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *repoPG) GetDetail(ctx context.Context, id int64) (*Detail, error) {
	query, args, err := detailSQL(id)
	if err != nil {
		return nil, fmt.Errorf("build appointment query: %w", err)
	}
	return scanDetail(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *repoPG) ListDetails(ctx context.Context, f ListFilter) ([]*Detail, error) {
	query, args, err := listSQL(f)
	if err != nil {
		return nil, fmt.Errorf("build appointment listing: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Detail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
