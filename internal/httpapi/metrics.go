package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snackkit/backend/internal/domain"
)

// Metrics owns its registry so several API instances can live in one
// process without colliding on the global one.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	salesTotal  prometheus.Counter
	revenue     prometheus.Counter
	authResults *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snackkit",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snackkit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		salesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snackkit",
			Name:      "sales_recorded_total",
			Help:      "Sales recorded through the API.",
		}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snackkit",
			Name:      "sales_revenue_total",
			Help:      "Sum of recorded sale totals.",
		}),
		authResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snackkit",
			Name:      "auth_attempts_total",
			Help:      "Identity operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(
		m.requests, m.duration, m.salesTotal, m.revenue, m.authResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(method string, path string, status int, elapsed time.Duration) {
	route := routeLabel(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeSale(sale domain.Sale) {
	m.salesTotal.Inc()
	m.revenue.Add(sale.TotalAmount.InexactFloat64())
}

func (m *Metrics) observeAuth(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.authResults.WithLabelValues(operation, outcome).Inc()
}

// routeLabel collapses record ids so the route label stays low-cardinality.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "v1" {
		return path
	}
	switch parts[2] {
	case "bakeries", "items", "sales":
		if parts[3] != "recent" && parts[3] != "export.xlsx" {
			parts[3] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
