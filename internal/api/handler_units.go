package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
)

// ListUnits handles GET /api/units, optionally filtered by ?class= or ?model=.
func (h *Handler) ListUnits(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		units []model.Unit
		err   error
	)
	switch {
	case c.Query("class") != "":
		units, err = store.FindBy[model.Unit](ctx, h.store, "class", c.Query("class"))
	case c.Query("model") != "":
		units, err = store.FindBy[model.Unit](ctx, h.store, "model", c.Query("model"))
	default:
		units, err = store.All[model.Unit](ctx, h.store)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, units)
}

// GetUnit handles GET /api/units/:id.
func (h *Handler) GetUnit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	unit, err := store.GetAs[model.Unit](c.Request.Context(), h.store, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// CreateUnit handles POST /api/units.
func (h *Handler) CreateUnit(c *gin.Context) {
	var form validation.UnitForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "invalid request")
		return
	}
	unit, err := h.writer.CreateUnit(c.Request.Context(), form)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

// UpdateUnit handles PUT /api/units/:id.
func (h *Handler) UpdateUnit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var form validation.UnitForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "invalid request")
		return
	}
	unit, err := h.writer.UpdateUnit(c.Request.Context(), id, form)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// DeleteUnit handles DELETE /api/units/:id. Readings and breakdowns of the
// unit are kept.
func (h *Handler) DeleteUnit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.writer.DeleteUnit(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLastHM handles GET /api/units/:id/last-hm, the reading new entries
// must not go below. The body is null when the unit has no readings.
func (h *Handler) GetLastHM(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	last, err := h.store.MaxHMLog(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, last)
}
