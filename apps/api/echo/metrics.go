package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "sga"

// Metrics holds the API's Prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	passValidations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		passValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "passe",
			Name:      "validations_total",
			Help:      "Passe Fácil validation attempts by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	reg.MustRegister(m.requestDuration, m.passValidations)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request durations. /metrics itself is skipped.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			route := ctx.Path()
			if route == "/metrics" {
				return next(ctx)
			}

			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := strconv.Itoa(ctx.Response().Status)
				m.requestDuration.WithLabelValues(ctx.Request().Method, route, status).Observe(v)
			}))
			// handle the error here so the recorded status is the one sent
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			timer.ObserveDuration()
			return nil
		}
	}
}

func (m *Metrics) observeValidation(method string, err error) {
	outcome := "valid"
	if err != nil {
		outcome = "invalid"
	}
	m.passValidations.WithLabelValues(method, outcome).Inc()
}
