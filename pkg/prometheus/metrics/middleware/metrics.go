package middleware

import (
	"strconv"
	"unsafe"

	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	"github.com/valyala/fasthttp"
)

type PrometheusMetrics struct {
	metrics metrics.Meter
}

func NewPrometheusMetrics(metrics metrics.Meter) *PrometheusMetrics {
	return &PrometheusMetrics{metrics: metrics}
}

func (m *PrometheusMetrics) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		mthd := ctx.Method()
		method := *(*string)(unsafe.Pointer(&mthd))

		timer := m.metrics.NewApiTimer(method)

		next(ctx)

		m.metrics.IncApiRequest(method, strconv.Itoa(ctx.Response.StatusCode()))
		m.metrics.FlushApiTimer(timer)
	}
}
