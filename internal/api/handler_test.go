package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms-backend/internal/availability"
	"fms-backend/internal/dashboard"
	"fms-backend/internal/db/dbtest"
	"fms-backend/internal/metrics"
	"fms-backend/internal/model"
	"fms-backend/internal/mw"
	"fms-backend/internal/reactive"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	store  store.Store
}

func newTestServer(t *testing.T) *testServer {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := store.NewGormStore(dbtest.New(t), nil)
	v := validation.NewValidator(s, validation.Options{})
	w := validation.NewWriter(s, v, nil, validation.WithClock(func() time.Time { return testNow }))

	hub := reactive.NewHub(s, 1, nil)
	hub.Start(ctx)
	dash := dashboard.New(hub, availability.New(availability.Options{}), dashboard.Options{
		Now: func() time.Time { return testNow },
	}, nil)
	require.NoError(t, dash.Start(ctx))

	h := NewHandler(s, w, dash, &webpush.Options{VAPIDPublicKey: "public"}, nil)
	router := NewRouter(h, metrics.New(dash, s), RouterConfig{RateLimit: 1000, Burst: 1000}, nil)
	return &testServer{router: router, store: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createUnit(t *testing.T, code string) model.Unit {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/units", gin.H{"code": code, "model": "P460", "class": "DUMP TRUCK"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Unit](t, rec)
}

func (ts *testServer) createComponent(t *testing.T, system, section, sub string) model.Component {
	t.Helper()
	c := &model.Component{System: system, Section: section, SubComponent: sub}
	_, err := ts.store.Insert(context.Background(), c)
	require.NoError(t, err)
	return *c
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnits_CRUD(t *testing.T) {
	ts := newTestServer(t)

	u := ts.createUnit(t, "DT-001")
	assert.NotZero(t, u.ID)

	rec := ts.do(t, http.MethodGet, "/api/units/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DT-001", decode[model.Unit](t, rec).Code)

	rec = ts.do(t, http.MethodPut, "/api/units/1", gin.H{"code": "DT-001", "model": "P460", "class": "DUMP TRUCK", "spare": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[model.Unit](t, rec).Spare)

	rec = ts.do(t, http.MethodDelete, "/api/units/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/units/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnits_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.createUnit(t, "DT-001")

	rec := ts.do(t, http.MethodGet, "/api/units/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/units", gin.H{"code": "DT-001", "model": "P460", "class": "DUMP TRUCK"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "code", decode[map[string]any](t, rec)["field"])

	rec = ts.do(t, http.MethodPost, "/api/units", gin.H{"model": "P460"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/units/99", gin.H{"code": "X", "model": "Y", "class": "Z"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnits_ListFiltersAndCache(t *testing.T) {
	ts := newTestServer(t)
	ts.createUnit(t, "DT-001")

	rec := ts.do(t, http.MethodGet, "/api/units", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(mw.CacheHeader))
	assert.Len(t, decode[[]model.Unit](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/units", nil)
	assert.Equal(t, "HIT", rec.Header().Get(mw.CacheHeader))

	rec = ts.do(t, http.MethodPost, "/api/units", gin.H{"code": "EX-001", "model": "PC2000", "class": "EXCAVATOR"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/units", nil)
	assert.Equal(t, "MISS", rec.Header().Get(mw.CacheHeader))
	assert.Len(t, decode[[]model.Unit](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/units?class=EXCAVATOR", nil)
	units := decode[[]model.Unit](t, rec)
	require.Len(t, units, 1)
	assert.Equal(t, "EX-001", units[0].Code)
}

func TestComponents_Search(t *testing.T) {
	ts := newTestServer(t)
	ts.createComponent(t, "ENGINE", "FUEL SYSTEM", "INJECTION PUMP")
	ts.createComponent(t, "ENGINE", "COOLING SYSTEM", "RADIATOR")
	ts.createComponent(t, "HYDRAULIC", "HYDRAULIC PUMP", "MAIN PUMP")
	for i := 0; i < 12; i++ {
		ts.createComponent(t, "ELECTRICAL", "LIGHTING", "LAMP")
	}

	rec := ts.do(t, http.MethodGet, "/api/components?q=pump", nil)
	comps := decode[[]model.Component](t, rec)
	require.Len(t, comps, 2)
	assert.Equal(t, "INJECTION PUMP", comps[0].SubComponent)
	assert.Equal(t, "MAIN PUMP", comps[1].SubComponent)

	rec = ts.do(t, http.MethodGet, "/api/components?q=lamp", nil)
	assert.Len(t, decode[[]model.Component](t, rec), searchLimit)

	rec = ts.do(t, http.MethodGet, "/api/components?system=ENGINE", nil)
	assert.Len(t, decode[[]model.Component](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/components", nil)
	assert.Len(t, decode[[]model.Component](t, rec), 15)
}

func TestHMLogs_Monotonicity(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUnit(t, "DT-001")

	rec := ts.do(t, http.MethodGet, "/api/units/1/last-hm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = ts.do(t, http.MethodPost, "/api/hm-logs", gin.H{"unit_id": u.ID, "date": "2024-05-09", "shift": "Day", "hm_value": 1200.5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[hmLogResponse](t, rec)
	assert.Equal(t, 1200.5, created.HMLog.HMValue)
	assert.Empty(t, created.Warnings)

	rec = ts.do(t, http.MethodPost, "/api/hm-logs", gin.H{"unit_id": u.ID, "date": "2024-05-10", "shift": "Day", "hm_value": 1100})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "HM cannot be less than previous recording (1200.5)", body["error"])
	assert.Equal(t, "hm_value", body["field"])

	rec = ts.do(t, http.MethodGet, "/api/units/1/last-hm", nil)
	assert.Equal(t, 1200.5, decode[model.HMLog](t, rec).HMValue)

	rec = ts.do(t, http.MethodGet, "/api/hm-logs?unit_id=1", nil)
	assert.Len(t, decode[[]model.HMLog](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/hm-logs?unit_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHMLogs_Defaults(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUnit(t, "DT-001")

	rec := ts.do(t, http.MethodPost, "/api/hm-logs", gin.H{"unit_id": u.ID, "hm_value": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[hmLogResponse](t, rec)
	assert.Equal(t, "2024-05-10", created.HMLog.Date)
	assert.Equal(t, model.ShiftDay, created.HMLog.Shift)
}

func TestBreakdowns_ReportAndClose(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUnit(t, "DT-001")
	comp := ts.createComponent(t, "ENGINE", "FUEL SYSTEM", "INJECTION PUMP")

	start := testNow.Add(-5 * time.Hour)
	rec := ts.do(t, http.MethodPost, "/api/breakdowns", gin.H{
		"unit_id":      u.ID,
		"component_id": comp.ID,
		"start":        start,
		"description":  "engine will not start",
		"category":     "USM",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[model.BreakdownLog](t, rec)
	assert.Nil(t, b.End)

	rec = ts.do(t, http.MethodPatch, "/api/breakdowns/1/rfu", gin.H{"end": start.Add(-time.Hour)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/breakdowns/1/rfu", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[model.BreakdownLog](t, rec)
	require.NotNil(t, closed.End)
	assert.True(t, closed.End.Equal(testNow))

	rec = ts.do(t, http.MethodPatch, "/api/breakdowns/1/rfu", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/breakdowns/9/rfu", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/breakdowns?unit_id=1", nil)
	assert.Len(t, decode[[]model.BreakdownLog](t, rec), 1)
}

func TestBreakdowns_UnknownUnit(t *testing.T) {
	ts := newTestServer(t)
	comp := ts.createComponent(t, "ENGINE", "FUEL SYSTEM", "INJECTION PUMP")

	rec := ts.do(t, http.MethodPost, "/api/breakdowns", gin.H{"unit_id": 5, "component_id": comp.ID, "description": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unit_id", decode[map[string]any](t, rec)["field"])
}

func TestDashboard_FollowsWrites(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUnit(t, "DT-001")
	comp := ts.createComponent(t, "ENGINE", "FUEL SYSTEM", "INJECTION PUMP")

	rec := ts.do(t, http.MethodPost, "/api/breakdowns", gin.H{
		"unit_id":      u.ID,
		"component_id": comp.ID,
		"start":        testNow.Add(-5 * time.Hour),
		"description":  "no start",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/dashboard?days=7", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var r availability.Report
		if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
			return false
		}
		return len(r.Units) == 1 && r.Units[0].BreakdownHours == 5 && r.Units[0].OpenBreakdowns == 1
	}, 2*time.Second, 20*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decode[availability.Report](t, rec).WindowDays)

	rec = ts.do(t, http.MethodGet, "/api/dashboard?days=14", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/dashboard?days=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard_Stream(t *testing.T) {
	ts := newTestServer(t)
	ts.createUnit(t, "DT-001")

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/dashboard/stream?days=7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}
	assert.Equal(t, "report", event)

	var r availability.Report
	require.NoError(t, json.Unmarshal([]byte(data), &r))
	assert.Equal(t, 7, r.WindowDays)
	assert.Len(t, r.Units, 1)
}

func TestSync_PendingAndAck(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUnit(t, "DT-001")

	rec := ts.do(t, http.MethodPost, "/api/hm-logs", gin.H{"unit_id": u.ID, "hm_value": 10})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sync/pending?collection=hm_logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.HMLog](t, rec), 1)

	rec = ts.do(t, http.MethodPost, "/api/sync/ack", gin.H{"collection": "hm_logs", "ids": []int64{1}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sync/pending?collection=hm_logs", nil)
	assert.Empty(t, decode[[]model.HMLog](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/sync/pending?collection=units", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, rec.Body.String())

	sub := gin.H{"endpoint": "https://push.example.com/abc", "p256dh": "key", "auth": "secret"}
	rec = ts.do(t, http.MethodPut, "/api/subscriptions", sub)
	assert.Equal(t, http.StatusCreated, rec.Code)

	sub["auth"] = "rotated"
	rec = ts.do(t, http.MethodPut, "/api/subscriptions", sub)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var stored model.PushSubscription
	require.NoError(t, ts.store.DB().First(&stored, "endpoint = ?", "https://push.example.com/abc").Error)
	assert.Equal(t, "rotated", stored.Auth)

	rec = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/abc", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": "https://push.example.com/abc"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"public_key":"public"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/units", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fms_fleet_mechanical_availability_percent")
}
