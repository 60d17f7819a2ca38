package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fms-backend/internal/metrics"
	"fms-backend/internal/mw"
)

// RouterConfig holds the HTTP-facing limits.
type RouterConfig struct {
	RateLimit rate.Limit
	Burst     int
	CacheTTL  time.Duration
}

// NewRouter creates and configures a new Gin router. m may be nil, in which
// case /metrics is not served.
func NewRouter(h *Handler, m *metrics.Metrics, cfg RouterConfig, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(10)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLogger(log, func(c *gin.Context) bool {
		return c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics"
	}))
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	r.GET("/healthz", h.Healthz)

	// Cached lists are dropped on every store change.
	responses := mw.NewResponseCache(cfg.CacheTTL)
	h.store.Subscribe(mw.FlushOnChange(responses))
	caching := mw.Cache(responses, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(cfg.RateLimit, cfg.Burst))
	{
		api.GET("/units", caching, h.ListUnits)
		api.POST("/units", h.CreateUnit)
		api.GET("/units/:id", h.GetUnit)
		api.PUT("/units/:id", h.UpdateUnit)
		api.DELETE("/units/:id", h.DeleteUnit)
		api.GET("/units/:id/last-hm", h.GetLastHM)

		api.GET("/components", caching, h.SearchComponents)

		api.GET("/hm-logs", caching, h.ListHMLogs)
		api.POST("/hm-logs", h.CreateHMLog)

		api.GET("/breakdowns", caching, h.ListBreakdowns)
		api.POST("/breakdowns", h.CreateBreakdown)
		api.PATCH("/breakdowns/:id/rfu", h.CloseBreakdown)

		api.GET("/dashboard", h.GetDashboard)
		api.GET("/dashboard/stream", h.StreamDashboard)

		api.GET("/sync/pending", h.ListPending)
		api.POST("/sync/ack", h.AckSynced)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
