// Package telemetry exposes Prometheus metrics for HTTP traffic, auth events,
// email dispatch and upstream calls.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthEventsTotal    *prometheus.CounterVec
	EmailDispatchTotal *prometheus.CounterVec

	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimedicare_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimedicare_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimedicare_auth_events_total",
				Help: "Authentication events by operation and outcome",
			},
			[]string{"event", "outcome"},
		),
		EmailDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimedicare_email_dispatch_total",
				Help: "Outbound emails by template and outcome",
			},
			[]string{"template", "outcome"},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimedicare_upstream_requests_total",
				Help: "Calls to third-party services by service, operation and outcome",
			},
			[]string{"service", "operation", "outcome"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimedicare_upstream_request_duration_seconds",
				Help:    "Third-party call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.EmailDispatchTotal,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// AuthEvent counts one auth operation outcome. Nil-safe.
func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// EmailDispatch counts one outbound email. Nil-safe.
func (m *Metrics) EmailDispatch(template string, err error) {
	if m == nil {
		return
	}
	m.EmailDispatchTotal.WithLabelValues(template, outcome(err)).Inc()
}

// ObserveUpstream records one third-party call. Nil-safe.
func (m *Metrics) ObserveUpstream(service, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(service, operation, outcome(err)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if sc, ok := err.(interface{ Status() int }); ok {
					status = sc.Status()
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
