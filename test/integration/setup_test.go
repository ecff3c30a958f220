//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/migrations"
)

var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 20, 2)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

type services struct {
	appointments *appointment.Service
	clinical     *clinical.Service
	billing      *billing.Service
}

func newServices(strict, allowNegativeStock bool) *services {
	tx := db.NewTransactor(globalPool)
	pub := events.Noop{}
	return &services{
		appointments: appointment.NewService(appointment.NewRepoPG(globalPool), tx, pub,
			appointment.Options{StrictTransitions: strict}),
		clinical: clinical.NewService(
			clinical.NewRecordRepoPG(globalPool),
			clinical.NewPrescriptionRepoPG(globalPool),
			clinical.NewStockRepoPG(globalPool),
			tx, pub,
			clinical.Options{AllowNegativeStock: allowNegativeStock},
		),
		billing: billing.NewService(billing.NewRepoPG(globalPool), tx, pub),
	}
}

func createPatient(t *testing.T, ctx context.Context) string {
	t.Helper()
	ic := "IC" + uuid.NewString()[:8]
	_, err := globalPool.Exec(ctx,
		`INSERT INTO patient (patient_ic, first_name, last_name, phone) VALUES ($1, $2, $3, $4)`,
		ic, "Aina", "Rahman", "012-3456789")
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return ic
}

func createDoctor(t *testing.T, ctx context.Context) int64 {
	t.Helper()
	var id int64
	err := globalPool.QueryRow(ctx,
		`INSERT INTO doctor (first_name, last_name) VALUES ($1, $2) RETURNING doctor_id`,
		"Lim", "Wei").Scan(&id)
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return id
}

func createMedicine(t *testing.T, ctx context.Context, name, unitPrice string, stock int) int64 {
	t.Helper()
	var id int64
	err := globalPool.QueryRow(ctx,
		`INSERT INTO medicine (medicine_name, unit_price, stock) VALUES ($1, $2::numeric, $3) RETURNING medicine_id`,
		name, unitPrice, stock).Scan(&id)
	if err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	return id
}

func stockOf(t *testing.T, ctx context.Context, medicineID int64) int {
	t.Helper()
	var stock int
	if err := globalPool.QueryRow(ctx, `SELECT stock FROM medicine WHERE medicine_id = $1`, medicineID).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

func book(t *testing.T, ctx context.Context, svc *services, ic string, doctorID int64, date, clock string) *appointment.Appointment {
	t.Helper()
	a, err := svc.appointments.Book(ctx, &appointment.BookRequest{
		PatientIC:       ic,
		DoctorID:        doctorID,
		AppointmentDate: date,
		AppointmentTime: clock,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}

func countRows(t *testing.T, ctx context.Context, sql string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := globalPool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func ptrStr(s string) *string { return &s }
