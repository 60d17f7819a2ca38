package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
)

// ListHMLogs handles GET /api/hm-logs, optionally for one ?unit_id=.
func (h *Handler) ListHMLogs(c *gin.Context) {
	unitID, ok := optionalInt(c, "unit_id")
	if !ok {
		return
	}

	var (
		logs []model.HMLog
		err  error
	)
	if unitID > 0 {
		logs, err = store.FindBy[model.HMLog](c.Request.Context(), h.store, "unit_id", unitID)
	} else {
		logs, err = store.All[model.HMLog](c.Request.Context(), h.store)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

type hmLogResponse struct {
	HMLog    model.HMLog `json:"hm_log"`
	Warnings []string    `json:"warnings,omitempty"`
}

// CreateHMLog handles POST /api/hm-logs.
func (h *Handler) CreateHMLog(c *gin.Context) {
	var form validation.HMEntryForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "invalid request")
		return
	}

	entry, warnings, err := h.writer.RecordHM(c.Request.Context(), form)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, hmLogResponse{HMLog: entry, Warnings: warnings})
}
