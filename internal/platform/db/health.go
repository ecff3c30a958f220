package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool snapshot reported by GET /health/db.
type PoolStats struct {
	TotalConns        int32  `json:"totalConns"`
	IdleConns         int32  `json:"idleConns"`
	AcquiredConns     int32  `json:"acquiredConns"`
	MaxConns          int32  `json:"maxConns"`
	AcquireCount      int64  `json:"acquireCount"`
	EmptyAcquireCount int64  `json:"emptyAcquireCount"`
	AcquireDuration   string `json:"acquireDuration"`
	Healthy           bool   `json:"healthy"`
}

// GetPoolStats snapshots pool. A nil pool reports zero connections.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	if pool == nil {
		return &PoolStats{}
	}
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:        stat.TotalConns(),
		IdleConns:         stat.IdleConns(),
		AcquiredConns:     stat.AcquiredConns(),
		MaxConns:          stat.MaxConns(),
		AcquireCount:      stat.AcquireCount(),
		EmptyAcquireCount: stat.EmptyAcquireCount(),
		AcquireDuration:   stat.AcquireDuration().String(),
		Healthy:           stat.TotalConns() > 0,
	}
}

// Pinger is the part of the pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health/db. Raw driver errors are only included
// when exposeDetails is set.
func HealthHandler(pool *pgxpool.Pool, exposeDetails bool) echo.HandlerFunc {
	return healthHandler(pool, func() *PoolStats { return GetPoolStats(pool) }, exposeDetails)
}

func healthHandler(p Pinger, stats func() *PoolStats, exposeDetails bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := p.Ping(ctx)
		s := stats()

		if err != nil {
			s.Healthy = false
			body := map[string]interface{}{
				"success": false,
				"status":  "unhealthy",
				"error":   "database unavailable",
				"pool":    s,
			}
			if exposeDetails {
				body["details"] = err.Error()
			}
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "healthy",
			"pool":    s,
		})
	}
}
