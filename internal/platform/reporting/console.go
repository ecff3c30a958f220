package reporting

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/response"
)

// ConsoleConfig bounds the ad-hoc SQL console.
type ConsoleConfig struct {
	MaxRows          int
	StatementTimeout time.Duration
}

func DefaultConsoleConfig() *ConsoleConfig {
	return &ConsoleConfig{MaxRows: 500, StatementTimeout: 5 * time.Second}
}

// deniedKeywords are refused anywhere in a console query, even though the
// transaction is already read-only.
var deniedKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true, "RENAME": true,
	"GRANT": true, "REVOKE": true, "COPY": true, "CALL": true, "DO": true,
	"VACUUM": true, "ANALYZE": true, "CLUSTER": true, "REINDEX": true, "LOCK": true,
	"SET": true, "RESET": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true,
	"SAVEPOINT": true, "PREPARE": true, "EXECUTE": true, "LISTEN": true, "NOTIFY": true,
	"PG_SLEEP": true, "PG_TERMINATE_BACKEND": true, "PG_CANCEL_BACKEND": true,
	"SET_CONFIG": true, "DBLINK": true, "LO_IMPORT": true, "LO_EXPORT": true, "PG_READ_FILE": true,
}

var allowedLeading = map[string]bool{"SELECT": true, "WITH": true, "VALUES": true, "TABLE": true}

// CheckQuery normalizes a console query and refuses anything that is not a
// single read statement.
func CheckQuery(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	q = strings.TrimRight(q, "; \t\r\n")
	if q == "" {
		return "", apperr.MissingFields("query")
	}
	if strings.Contains(q, ";") {
		return "", apperr.Validation("only a single statement is allowed")
	}

	words := strings.FieldsFunc(strings.ToUpper(q), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if len(words) == 0 || !allowedLeading[words[0]] {
		return "", apperr.Validation("only SELECT queries are allowed")
	}
	for _, w := range words {
		if deniedKeywords[w] {
			return "", apperr.Validation("keyword %s is not allowed", w)
		}
	}
	return q, nil
}

type queryRequest struct {
	Query string `json:"query" validate:"required"`
}

type queryResult struct {
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"rowCount"`
	Truncated bool                     `json:"truncated"`
}

// Query runs caller-supplied SQL in a read-only transaction.
func (h *Handler) Query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	q, err := CheckQuery(req.Query)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	zerolog.Ctx(ctx).Info().Str("query", q).Msg("sql console query")

	var res queryResult
	err = h.readOnly(ctx, h.console.StatementTimeout, func(ctx context.Context) error {
		var err error
		res.Rows, res.Columns, res.Truncated, err = collect(ctx, db.Conn(ctx, h.pool), q, h.console.MaxRows)
		return err
	})
	if err != nil {
		if pgErr, ok := db.PgError(err); ok {
			return &apperr.Error{Kind: apperr.KindValidation, Message: "query failed: " + pgErr.Message, Err: err}
		}
		return apperr.Internal("query failed", err)
	}
	res.RowCount = len(res.Rows)
	return response.OK(c, res)
}
