package controller

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

const MetricsPath = "/metrics"

// PrometheusMetrics serves every registered metric in the Prometheus text format.
type PrometheusMetrics struct{}

func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

func (m *PrometheusMetrics) Get(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	metrics.WritePrometheus(ctx, true)
}

func (m *PrometheusMetrics) AddRoute(r *router.Router) {
	r.GET(MetricsPath, m.Get)
}
