package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func runHealth(t *testing.T, p Pinger, expose bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	stats := func() *PoolStats { return &PoolStats{TotalConns: 2, MaxConns: 10, Healthy: true} }
	if err := healthHandler(p, stats, expose)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := runHealth(t, fakePinger{}, false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := runHealth(t, fakePinger{err: errors.New("dial tcp: refused")}, false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if _, ok := body["details"]; ok {
		t.Error("expected driver error to be hidden")
	}
	pool, _ := body["pool"].(map[string]interface{})
	if pool["healthy"] != false {
		t.Errorf("expected pool to be marked unhealthy, got %v", pool["healthy"])
	}
}

func TestHealthHandler_UnhealthyExposesDetails(t *testing.T) {
	_, body := runHealth(t, fakePinger{err: errors.New("dial tcp: refused")}, true)
	if body["details"] != "dial tcp: refused" {
		t.Errorf("expected details, got %v", body["details"])
	}
}

func TestPoolStats_JSONFields(t *testing.T) {
	stats := &PoolStats{TotalConns: 10, IdleConns: 5, AcquireDuration: "1.5s", Healthy: true}
	b, err := json.Marshal(stats)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	for _, k := range []string{"totalConns", "idleConns", "acquiredConns", "maxConns", "acquireCount", "emptyAcquireCount", "acquireDuration", "healthy"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing json field %s", k)
		}
	}
}

func TestGetPoolStats_NilPool(t *testing.T) {
	s := GetPoolStats(nil)
	if s.Healthy || s.TotalConns != 0 {
		t.Errorf("expected empty stats, got %+v", s)
	}
}
