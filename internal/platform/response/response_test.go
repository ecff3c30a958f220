package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func render(t *testing.T, err error, expose bool) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(zerolog.Nop(), expose)(err, c)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return rec, env
}

func TestErrorHandler_Conflict(t *testing.T) {
	rec, env := render(t, apperr.Conflict("appointment slot already booked"), false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if env.Success {
		t.Error("expected success=false")
	}
	if env.Message != "appointment slot already booked" {
		t.Errorf("unexpected message %q", env.Message)
	}
	if env.Error != "" {
		t.Errorf("expected no error detail, got %q", env.Error)
	}
}

func TestErrorHandler_RedactsStoreDetail(t *testing.T) {
	cause := errors.New(`relation "appointment" does not exist`)
	rec, env := render(t, apperr.Internal("failed to list appointments", cause), false)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if env.Message != "failed to list appointments" {
		t.Errorf("unexpected message %q", env.Message)
	}
	if env.Error != "" {
		t.Errorf("expected detail to be redacted, got %q", env.Error)
	}
}

func TestErrorHandler_ExposesDetailInDebug(t *testing.T) {
	cause := errors.New(`relation "appointment" does not exist`)
	_, env := render(t, apperr.Internal("failed to list appointments", cause), true)
	if env.Error != cause.Error() {
		t.Errorf("expected detail %q, got %q", cause.Error(), env.Error)
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	rec, env := render(t, echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), false)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if env.Message != "rate limit exceeded" {
		t.Errorf("unexpected message %q", env.Message)
	}
}

func TestErrorHandler_PlainError(t *testing.T) {
	rec, env := render(t, errors.New("kaboom"), false)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if env.Message != "internal server error" {
		t.Errorf("unexpected message %q", env.Message)
	}
	if env.Error != "" {
		t.Errorf("expected no detail, got %q", env.Error)
	}
}

func TestOK(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := OK(c, map[string]int{"count": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data["count"] != 2 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
