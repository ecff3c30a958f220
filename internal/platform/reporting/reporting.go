// Package reporting serves canned clinic reports and the optional ad-hoc SQL
// console. Both run read-only.
package reporting

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/response"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measureId"`
	MeasureName string                   `json:"measureName"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "appointments-by-status",
		Name:        "Appointments by Status",
		Description: "Number of appointments in each lifecycle status",
		SQL:         `SELECT status, COUNT(*) AS total FROM appointment GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "daily-bookings",
		Name:        "Daily Bookings",
		Description: "Non-cancelled appointments per day for the 30 most recent days with bookings",
		SQL: `SELECT to_char(appointment_date, 'YYYY-MM-DD') AS date, COUNT(*) AS total
			FROM appointment WHERE status <> 'Cancelled'
			GROUP BY appointment_date ORDER BY appointment_date DESC LIMIT 30`,
	},
	{
		ID:          "doctor-workload",
		Name:        "Doctor Workload",
		Description: "Scheduled and completed appointments per doctor",
		SQL: `SELECT d.doctor_id, d.first_name || ' ' || d.last_name AS doctor_name,
				COUNT(*) FILTER (WHERE a.status = 'Scheduled') AS scheduled,
				COUNT(*) FILTER (WHERE a.status = 'Completed') AS completed
			FROM doctor d LEFT JOIN appointment a ON a.doctor_id = d.doctor_id
			GROUP BY d.doctor_id ORDER BY scheduled DESC, d.doctor_id`,
	},
	{
		ID:          "low-stock-medicines",
		Name:        "Low Stock Medicines",
		Description: "Medicines with fewer than ten units left, including negative stock",
		SQL:         `SELECT medicine_id, medicine_name, stock FROM medicine WHERE stock < 10 ORDER BY stock, medicine_id`,
	},
	{
		ID:          "revenue-by-payment-status",
		Name:        "Revenue by Payment Status",
		Description: "Invoice count and total amount, split into paid and pending",
		SQL: `SELECT CASE WHEN paid_date IS NOT NULL THEN 'Paid' ELSE 'Pending' END AS payment_status,
				COUNT(*) AS invoices, SUM(total_amount)::text AS total_amount
			FROM invoice GROUP BY 1 ORDER BY 1`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool    *pgxpool.Pool
	tx      db.Transactor
	console *ConsoleConfig
}

// NewHandler creates a reporting handler. A nil console keeps POST /query
// unregistered.
func NewHandler(pool *pgxpool.Pool, tx db.Transactor, console *ConsoleConfig) *Handler {
	return &Handler{pool: pool, tx: tx, console: console}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports")
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)

	if h.console != nil {
		api.POST("/query", h.Query)
	}
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return response.OK(c, PredefinedMeasures)
}

// MeasureTimeout bounds each statement of a measure evaluation.
const MeasureTimeout = 10 * time.Second

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return apperr.NotFound("measure not found")
	}

	var results []map[string]interface{}
	err := h.readOnly(c.Request().Context(), MeasureTimeout, func(ctx context.Context) error {
		var err error
		results, _, _, err = collect(ctx, db.Conn(ctx, h.pool), measure.SQL, 0)
		return err
	})
	if err != nil {
		return apperr.Internal("failed to evaluate measure", err)
	}

	return response.OK(c, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
	})
}

// readOnly runs fn in a read-only transaction, optionally bounded by a
// statement timeout.
func (h *Handler) readOnly(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	return h.tx.WithinTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context) error {
		if timeout > 0 {
			if _, err := db.Conn(ctx, h.pool).Exec(ctx,
				"SELECT set_config('statement_timeout', $1, true)", strconv.FormatInt(timeout.Milliseconds(), 10)); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}

// collect runs sql and returns rows as maps keyed by column name. maxRows
// caps the result when positive; truncated reports whether rows were left
// behind.
func collect(ctx context.Context, q db.Queryable, sql string, maxRows int) (results []map[string]interface{}, columns []string, truncated bool, err error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns = make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	results = []map[string]interface{}{}
	for rows.Next() {
		if maxRows > 0 && len(results) == maxRows {
			truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, nil, false, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, name := range columns {
			row[name] = values[i]
		}
		results = append(results, row)
	}
	return results, columns, truncated, rows.Err()
}
