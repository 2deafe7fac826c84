package liveness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

type fakeService struct{ alive atomic.Bool }

func (f *fakeService) IsAlive(context.Context) bool { return f.alive.Load() }

func TestProbe_WatchAndToggle(t *testing.T) {
	svc := &fakeService{}
	svc.alive.Store(true)

	probe := NewProbe(20 * time.Millisecond)
	defer probe.Stop()
	probe.Watch(svc)

	assert.True(t, probe.IsAlive(), "first check runs on Watch")

	svc.alive.Store(false)
	assert.Eventually(t, func() bool { return !probe.IsAlive() }, time.Second, 5*time.Millisecond)

	svc.alive.Store(true)
	assert.Eventually(t, probe.IsAlive, time.Second, 5*time.Millisecond)
}

func TestController_ReportsVerdict(t *testing.T) {
	svc := &fakeService{}
	probe := NewProbe(time.Hour)
	defer probe.Stop()
	probe.Watch(svc)

	r := router.New()
	NewController(probe).AddRoute(r)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI(ProbePath)
	r.Handler(ctx)

	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"status":"dead"}`, string(ctx.Response.Body()))
}
