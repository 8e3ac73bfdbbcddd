package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/version"
)

// HealthHandler reports liveness plus database reachability for the service's
// own uptime checks. A HEALTH_ENDPOINT probe reads the "status" field.
type HealthHandler struct {
	db       *gorm.DB
	inFlight func() int
}

func NewHealthHandler(db *gorm.DB, inFlight func() int) *HealthHandler {
	return &HealthHandler{db: db, inFlight: inFlight}
}

func (h *HealthHandler) Get(c *gin.Context) {
	info := version.Info()
	resp := gin.H{
		"status":     "ok",
		"service":    info.Service,
		"version":    info.Version,
		"git_commit": info.GitCommit,
		"build_time": info.BuildTime,
	}
	if h.inFlight != nil {
		resp["checks_in_flight"] = h.inFlight()
	}

	code := http.StatusOK
	if err := h.pingDB(c.Request.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	} else {
		resp["database"] = "ok"
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
