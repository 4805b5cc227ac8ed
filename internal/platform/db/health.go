package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// HealthReport is the body of GET /healthcheck.
type HealthReport struct {
	Server                   string `json:"server"`
	Database                 string `json:"database"`
	DatabaseConnectionTimeMS int64  `json:"database_connection_time_ms"`
	Migrations               string `json:"migrations"`
}

// HealthHandler reports server, database and migration status. The
// database probe retries once to ride out transient connection drops.
func HealthHandler(pool *pgxpool.Pool, migrator *Migrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Server: "ok", Database: "ok", Migrations: "ok"}

		start := time.Now()
		err := pool.Ping(ctx)
		if err != nil {
			err = pool.Ping(ctx)
		}
		report.DatabaseConnectionTimeMS = time.Since(start).Milliseconds()

		status := http.StatusOK
		if err != nil {
			report.Database = "error"
			report.Migrations = "error"
			status = http.StatusServiceUnavailable
			return c.JSON(status, report)
		}

		pending, err := migrator.Pending(ctx)
		switch {
		case err != nil:
			report.Migrations = "error"
		case pending > 0:
			report.Migrations = "pending"
		}

		return c.JSON(status, report)
	}
}
