package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fms-backend/internal/availability"
	"fms-backend/internal/dashboard"
	"fms-backend/internal/mw"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	writer    *validation.Writer
	dashboard *dashboard.Service
	webpush   *webpush.Options
	log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, w *validation.Writer, d *dashboard.Service, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:     s,
		writer:    w,
		dashboard: d,
		webpush:   webpushOptions,
		log:       log,
	}
}

// fail maps err onto a status code and a JSON error body. Rejections carry
// their message so the client can show it next to the form.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		f  *validation.Failure
		mv *validation.MonotonicityViolation
	)
	switch {
	case errors.As(err, &mv):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":    mv.Error(),
			"field":    "hm_value",
			"previous": mv.Previous,
		})
	case errors.As(err, &f):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": f.Message, "field": f.Field})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, dashboard.ErrWindowNotAllowed), errors.Is(err, availability.ErrInvalidWindow):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrSaveFailed):
		h.log.Warn("save failed", zap.String("request_id", mw.RequestID(c)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save data, it might be a duplicate entry"})
	default:
		h.log.Error("request failed", zap.String("request_id", mw.RequestID(c)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// idParam parses the :id path parameter.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// optionalInt parses an optional integer query parameter. Absent means 0.
func optionalInt(c *gin.Context, key string) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+key)
		return 0, false
	}
	return v, true
}

// Healthz reports that the process is serving.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
