package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fms-backend/internal/availability"
	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// ReportSource yields the current availability report. days == 0 selects
// the default window.
type ReportSource interface {
	Report(days int) (availability.Report, error)
}

// Metrics owns a registry with HTTP, runtime and fleet metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
}

// New builds the registry. Fleet metrics are derived on each scrape.
func New(reports ReportSource, r store.Reader) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fms_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fms_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fms_http_requests_in_flight",
			Help: "Current number of HTTP requests being processed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		newFleetCollector(reports, r),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records HTTP metrics labelled by the matched route, so the
// path label has bounded cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// fleetCollector is a custom Prometheus collector that derives availability
// figures and the sync backlog on each scrape.
type fleetCollector struct {
	reports ReportSource
	store   store.Reader

	fleetMA, fleetPA *prometheus.Desc
	unitMA, unitPA   *prometheus.Desc
	openBreakdowns   *prometheus.Desc
	unsynced         *prometheus.Desc
}

func newFleetCollector(reports ReportSource, r store.Reader) *fleetCollector {
	unitLabels := []string{"unit_id", "unit", "class"}
	return &fleetCollector{
		reports: reports,
		store:   r,
		fleetMA: prometheus.NewDesc("fms_fleet_mechanical_availability_percent",
			"Mean mechanical availability across the fleet.", []string{"window_days"}, nil),
		fleetPA: prometheus.NewDesc("fms_fleet_physical_availability_percent",
			"Mean physical availability across the fleet.", []string{"window_days"}, nil),
		unitMA: prometheus.NewDesc("fms_unit_mechanical_availability_percent",
			"Mechanical availability per unit.", unitLabels, nil),
		unitPA: prometheus.NewDesc("fms_unit_physical_availability_percent",
			"Physical availability per unit.", unitLabels, nil),
		openBreakdowns: prometheus.NewDesc("fms_unit_open_breakdowns",
			"Breakdowns without an RFU time per unit.", unitLabels, nil),
		unsynced: prometheus.NewDesc("fms_unsynced_records",
			"Records not yet acknowledged by a remote system.", []string{"collection"}, nil),
	}
}

func (c *fleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.fleetMA
	ch <- c.fleetPA
	ch <- c.unitMA
	ch <- c.unitPA
	ch <- c.openBreakdowns
	ch <- c.unsynced
}

func (c *fleetCollector) Collect(ch chan<- prometheus.Metric) {
	report, err := c.reports.Report(0)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.fleetMA, err)
	} else {
		days := strconv.Itoa(report.WindowDays)
		ch <- prometheus.MustNewConstMetric(c.fleetMA, prometheus.GaugeValue, float64(report.Fleet.MA), days)
		ch <- prometheus.MustNewConstMetric(c.fleetPA, prometheus.GaugeValue, float64(report.Fleet.PA), days)
		for _, u := range report.Units {
			id := strconv.FormatInt(u.UnitID, 10)
			ch <- prometheus.MustNewConstMetric(c.unitMA, prometheus.GaugeValue, u.MA, id, u.Code, u.Class)
			ch <- prometheus.MustNewConstMetric(c.unitPA, prometheus.GaugeValue, u.PA, id, u.Code, u.Class)
			ch <- prometheus.MustNewConstMetric(c.openBreakdowns, prometheus.GaugeValue, float64(u.OpenBreakdowns), id, u.Code, u.Class)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, coll := range []model.Collection{model.CollectionHMLogs, model.CollectionBreakdownLogs} {
		n, err := c.store.CountUnsynced(ctx, coll)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(c.unsynced, err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.unsynced, prometheus.GaugeValue, float64(n), string(coll))
	}
}
