package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/services"
)

type UptimeHandler struct {
	reader   *services.UptimeHistoryReader
	recorder *services.UptimeRecorder
}

func NewUptimeHandler(reader *services.UptimeHistoryReader, recorder *services.UptimeRecorder) *UptimeHandler {
	return &UptimeHandler{reader: reader, recorder: recorder}
}

// GetHistory returns a contiguous day series ending today. days defaults to 90.
func (h *UptimeHandler) GetHistory(c *gin.Context) {
	ref, ok := entityRef(c)
	if !ok {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "90"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrInvalidDays.Error()})
		return
	}
	view, err := h.reader.History(c.Request.Context(), ref, days)
	if err != nil {
		respondError(c, err, "Failed to get history")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Record writes the uptime row for one entity and date (default yesterday).
func (h *UptimeHandler) Record(c *gin.Context) {
	ref, ok := entityRef(c)
	if !ok {
		return
	}
	date := c.DefaultQuery("date", h.recorder.Yesterday())
	rec, err := h.recorder.RecordDay(c.Request.Context(), ref, date)
	if err != nil {
		respondError(c, err, "Failed to record uptime")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RecordAll runs the daily recorder for every entity.
func (h *UptimeHandler) RecordAll(c *gin.Context) {
	date := c.DefaultQuery("date", h.recorder.Yesterday())
	summary, err := h.recorder.RecordAll(c.Request.Context(), date)
	if err != nil {
		respondError(c, err, "Failed to record uptime")
		return
	}
	c.JSON(http.StatusOK, summary)
}
