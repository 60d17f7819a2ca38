package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// searchLimit caps free-text component matches.
const searchLimit = 10

// SearchComponents handles GET /api/components. ?q= matches system, section
// or sub-component case-insensitively; ?system= is an exact index lookup.
func (h *Handler) SearchComponents(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		comps []model.Component
		err   error
	)
	if system := c.Query("system"); system != "" {
		comps, err = store.FindBy[model.Component](ctx, h.store, "system", system)
	} else {
		comps, err = store.All[model.Component](ctx, h.store)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		comps = matchComponents(comps, q, searchLimit)
	}
	c.JSON(http.StatusOK, comps)
}

func matchComponents(comps []model.Component, q string, limit int) []model.Component {
	q = strings.ToLower(q)
	out := make([]model.Component, 0, limit)
	for _, comp := range comps {
		if strings.Contains(strings.ToLower(comp.System), q) ||
			strings.Contains(strings.ToLower(comp.SubComponent), q) ||
			strings.Contains(strings.ToLower(comp.Section), q) {
			out = append(out, comp)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
