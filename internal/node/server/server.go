package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/segment-registry/internal/node/api"
	"github.com/Borislavv/segment-registry/pkg/config"
	httpserver "github.com/Borislavv/segment-registry/pkg/http/server"
	"github.com/Borislavv/segment-registry/pkg/http/server/controller"
	"github.com/Borislavv/segment-registry/pkg/http/server/middleware"
	"github.com/Borislavv/segment-registry/pkg/k8s/probe/liveness"
	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	metricscontroller "github.com/Borislavv/segment-registry/pkg/prometheus/metrics/controller"
	metricsmiddleware "github.com/Borislavv/segment-registry/pkg/prometheus/metrics/middleware"
	"github.com/Borislavv/segment-registry/pkg/storage"
	"github.com/rs/zerolog/log"
)

var InitFailedErrorMessage = "[server] init. failed"

// Http interface exposes methods for starting and liveness probing.
type Http interface {
	Start()
	IsAlive() bool
}

// HttpServer wraps the admin API dependencies and the underlying fasthttp server.
type HttpServer struct {
	ctx           context.Context
	cfg           *config.Config
	tables        *storage.Tables
	loader        api.SegmentLoader
	probe         liveness.Prober
	metrics       metrics.Meter
	server        httpserver.Server
	isServerAlive *atomic.Bool
}

func New(
	ctx context.Context,
	cfg *config.Config,
	tables *storage.Tables,
	loader api.SegmentLoader,
	probe liveness.Prober,
	meter metrics.Meter,
) (*HttpServer, error) {
	srv := &HttpServer{
		ctx:           ctx,
		cfg:           cfg,
		tables:        tables,
		loader:        loader,
		probe:         probe,
		metrics:       meter,
		isServerAlive: &atomic.Bool{},
	}

	if err := srv.initServer(); err != nil {
		log.Err(err).Msg(InitFailedErrorMessage)
		return nil, errors.New(InitFailedErrorMessage)
	}

	return srv, nil
}

// Start runs the HTTP server and blocks until it exits.
func (s *HttpServer) Start() {
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	s.spawnServer(wg)
}

func (s *HttpServer) IsAlive() bool {
	return s.isServerAlive.Load()
}

func (s *HttpServer) spawnServer(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer func() {
			s.isServerAlive.Store(false)
			wg.Done()
		}()
		s.isServerAlive.Store(true)
		s.server.ListenAndServe()
	}()
}

func (s *HttpServer) initServer() error {
	server, err := httpserver.New(s.ctx, s.cfg, s.controllers(), s.middlewares())
	if err != nil {
		return err
	}
	s.server = server
	return nil
}

func (s *HttpServer) controllers() []controller.HttpController {
	return []controller.HttpController{
		liveness.NewController(s.probe),                             // healthcheck probe endpoint
		metricscontroller.NewPrometheusMetrics(),                    // metrics endpoint
		api.NewTablesController(s.tables),                           // tables overview
		api.NewSegmentsController(s.ctx, s.cfg, s.tables, s.loader), // topology updates
	}
}

// middlewares are executed in slice order.
func (s *HttpServer) middlewares() []middleware.HttpMiddleware {
	return []middleware.HttpMiddleware{
		/** exec 1st. */ metricsmiddleware.NewPrometheusMetrics(s.metrics), // counts requests by method and status
		/** exec 2nd. */ middleware.NewApplicationJsonMiddleware(), // sets the Content-Type: application/json
		/** exec 3rd. */ middleware.NewServerNameMiddleware(s.cfg), // sets the Server header
	}
}
