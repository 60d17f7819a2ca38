package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestCache_HitAndFlush(t *testing.T) {
	c := NewResponseCache(time.Minute)
	calls := 0

	r := gin.New()
	r.GET("/api/units", Cache(c, time.Minute), func(ctx *gin.Context) {
		calls++
		ctx.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	first := get(r, "/api/units")
	assert.Equal(t, "MISS", first.Header().Get(CacheHeader))

	second := get(r, "/api/units")
	assert.Equal(t, "HIT", second.Header().Get(CacheHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	FlushOnChange(c)(store.Change{Collection: model.CollectionUnits, Op: store.OpInsert})

	third := get(r, "/api/units")
	assert.Equal(t, "MISS", third.Header().Get(CacheHeader))
	assert.Equal(t, 2, calls)
}

func TestCache_SkipsErrors(t *testing.T) {
	c := NewResponseCache(time.Minute)
	r := gin.New()
	r.GET("/missing", Cache(c, time.Minute), func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})

	get(r, "/missing")
	assert.Equal(t, 0, c.Len())
}

func TestCache_KeepsCurrentRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop(), nil))
	r.GET("/api/units", Cache(NewResponseCache(time.Minute), time.Minute), func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"units": 0})
	})

	send := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/units", nil)
		req.Header.Set(RequestIDHeader, id)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send("first")
	assert.Equal(t, "first", first.Header().Get(RequestIDHeader))

	second := send("second")
	assert.Equal(t, "HIT", second.Header().Get(CacheHeader))
	assert.Equal(t, "second", second.Header().Get(RequestIDHeader))
}

func TestCache_DropsResponseRenderedAcrossFlush(t *testing.T) {
	c := NewResponseCache(time.Minute)
	flush := FlushOnChange(c)
	version := 1

	r := gin.New()
	r.GET("/api/units", Cache(c, time.Minute), func(ctx *gin.Context) {
		v := version
		if v == 1 {
			// A write commits while this response is being built.
			version = 2
			flush(store.Change{Collection: model.CollectionUnits, Op: store.OpInsert})
		}
		ctx.JSON(http.StatusOK, gin.H{"version": v})
	})

	first := get(r, "/api/units")
	assert.JSONEq(t, `{"version":1}`, first.Body.String())
	assert.Equal(t, 0, c.Len())

	second := get(r, "/api/units")
	assert.Equal(t, "MISS", second.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"version":2}`, second.Body.String())

	third := get(r, "/api/units")
	assert.Equal(t, "HIT", third.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"version":2}`, third.Body.String())
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/").Code)
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	a := l.GetLimiter("10.0.0.1")
	assert.Same(t, a, l.GetLimiter("10.0.0.1"))
	assert.NotSame(t, a, l.GetLimiter("10.0.0.2"))
	assert.Equal(t, 2, l.Len())
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core), func(c *gin.Context) bool { return c.Request.URL.Path == "/healthz" }))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/units", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})

	w := get(r, "/api/units")
	id := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Equal(t, id, w.Body.String())

	get(r, "/healthz")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/units", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, id, fields["request_id"])
}

func TestRequestLogger_KeepsCallerID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop(), nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
