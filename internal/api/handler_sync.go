package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

func syncCollection(c *gin.Context, name string) (model.Collection, bool) {
	switch coll := model.Collection(name); coll {
	case model.CollectionHMLogs, model.CollectionBreakdownLogs:
		return coll, true
	default:
		badRequest(c, "collection must be hm_logs or breakdown_logs")
		return "", false
	}
}

// ListPending handles GET /api/sync/pending?collection=, the rows a remote
// system has not acknowledged yet.
func (h *Handler) ListPending(c *gin.Context) {
	coll, ok := syncCollection(c, c.Query("collection"))
	if !ok {
		return
	}
	rows, err := h.store.Unsynced(c.Request.Context(), coll)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

type ackRequest struct {
	Collection string  `json:"collection" binding:"required"`
	IDs        []int64 `json:"ids" binding:"required"`
}

// AckSynced handles POST /api/sync/ack and flips the synced flag.
func (h *Handler) AckSynced(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	coll, ok := syncCollection(c, req.Collection)
	if !ok {
		return
	}
	if err := h.store.MarkSynced(c.Request.Context(), coll, req.IDs); err != nil {
		if errors.Is(err, store.ErrNotSyncable) {
			badRequest(c, err.Error())
			return
		}
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
