package clinical

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// -- Medical record --

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const recordCols = `record_id, appointment_id, diagnosis, notes, to_char(record_date, 'YYYY-MM-DD')`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.AppointmentID, &m.Diagnosis, &m.Notes, &m.RecordDate)
	if db.IsNoRows(err) {
		return nil, ErrRecordNotFound
	}
	return &m, err
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	var date *string
	if m.RecordDate != "" {
		date = &m.RecordDate
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record (appointment_id, diagnosis, notes, record_date)
		VALUES ($1, $2, $3, COALESCE($4::date, CURRENT_DATE))
		RETURNING record_id, to_char(record_date, 'YYYY-MM-DD')`,
		m.AppointmentID, m.Diagnosis, m.Notes, date,
	).Scan(&m.ID, &m.RecordDate)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id int64) (*MedicalRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE record_id = $1`, id))
}

func (r *recordRepoPG) ListByAppointment(ctx context.Context, appointmentID int64) ([]*MedicalRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE appointment_id = $1
		ORDER BY record_date DESC, record_id DESC`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*MedicalRecord{}
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// -- Prescription --

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (record_id, instruction)
		VALUES ($1, $2)
		RETURNING prescription_id, to_char(prescription_date, 'YYYY-MM-DD')`,
		p.RecordID, p.Instruction,
	).Scan(&p.ID, &p.PrescriptionDate)
}

func (r *prescriptionRepoPG) AddItem(ctx context.Context, prescriptionID int64, item *Item) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription_item (prescription_id, medicine_id, quantity, dosage, position)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING item_id`,
		prescriptionID, item.MedicineID, item.Quantity, item.Dosage, item.Position,
	).Scan(&item.ID)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id int64) (*Prescription, error) {
	var p Prescription
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT prescription_id, record_id, instruction, to_char(prescription_date, 'YYYY-MM-DD')
		FROM prescription WHERE prescription_id = $1`, id,
	).Scan(&p.ID, &p.RecordID, &p.Instruction, &p.PrescriptionDate)
	if db.IsNoRows(err) {
		return nil, ErrPrescriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pi.item_id, pi.medicine_id, m.medicine_name, pi.quantity, pi.dosage, pi.position
		FROM prescription_item pi
		JOIN medicine m ON m.medicine_id = pi.medicine_id
		WHERE pi.prescription_id = $1
		ORDER BY pi.position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.Items = []*Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.MedicineID, &it.MedicineName, &it.Quantity, &it.Dosage, &it.Position); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, &it)
	}
	return &p, rows.Err()
}

// -- Stock --

type stockRepoPG struct{ pool *pgxpool.Pool }

func NewStockRepoPG(pool *pgxpool.Pool) StockRepository {
	return &stockRepoPG{pool: pool}
}

func (r *stockRepoPG) Decrement(ctx context.Context, medicineID int64, qty int, floor bool) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE medicine SET stock = stock - $2
		WHERE medicine_id = $1 AND (NOT $3 OR stock >= $2)`,
		medicineID, qty, floor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM medicine WHERE medicine_id = $1)`, medicineID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrMedicineNotFound
	}
	return ErrInsufficientStock
}
