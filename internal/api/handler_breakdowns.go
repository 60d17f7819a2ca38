package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
)

// ListBreakdowns handles GET /api/breakdowns, optionally for one ?unit_id=.
func (h *Handler) ListBreakdowns(c *gin.Context) {
	unitID, ok := optionalInt(c, "unit_id")
	if !ok {
		return
	}

	var (
		logs []model.BreakdownLog
		err  error
	)
	if unitID > 0 {
		logs, err = store.FindBy[model.BreakdownLog](c.Request.Context(), h.store, "unit_id", unitID)
	} else {
		logs, err = store.All[model.BreakdownLog](c.Request.Context(), h.store)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// CreateBreakdown handles POST /api/breakdowns.
func (h *Handler) CreateBreakdown(c *gin.Context) {
	var form validation.BreakdownForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "invalid request")
		return
	}

	b, err := h.writer.ReportBreakdown(c.Request.Context(), form)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

type closeBreakdownRequest struct {
	End *time.Time `json:"end"`
}

// CloseBreakdown handles PATCH /api/breakdowns/:id/rfu. Without a body the
// unit is ready for use now.
func (h *Handler) CloseBreakdown(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req closeBreakdownRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
	}
	var end time.Time
	if req.End != nil {
		end = *req.End
	}

	b, err := h.writer.CloseBreakdown(c.Request.Context(), id, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
