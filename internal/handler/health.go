package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports process liveness for load balancers and monitoring.
// The database is a hard dependency; the cache is not, so a dead redis only
// degrades the status field instead of failing the check.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	dbState := "up"
	if err := h.DB.PingContext(ctx); err != nil {
		dbState = "down"
	}
	cacheState := "up"
	if h.Redis == nil {
		cacheState = "disabled"
	} else if err := h.Redis.Ping(ctx).Err(); err != nil {
		cacheState = "down"
	}

	status := http.StatusOK
	body := echo.Map{"status": "ok", "db": dbState, "cache": cacheState}
	if dbState == "down" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	return c.JSON(status, body)
}
