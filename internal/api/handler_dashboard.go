package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func daysParam(c *gin.Context) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid days")
		return 0, false
	}
	return days, true
}

// GetDashboard handles GET /api/dashboard?days=.
func (h *Handler) GetDashboard(c *gin.Context) {
	days, ok := daysParam(c)
	if !ok {
		return
	}
	report, err := h.dashboard.Report(days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// StreamDashboard handles GET /api/dashboard/stream?days=. It sends a
// "report" event with the current figures and another one after every
// change that affects them.
func (h *Handler) StreamDashboard(c *gin.Context) {
	days, ok := daysParam(c)
	if !ok {
		return
	}
	reports, cancel, err := h.dashboard.Watch(days)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case report, ok := <-reports:
			if !ok {
				return false
			}
			c.SSEvent("report", report)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
