package httpserver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/http/server/controller"
	"github.com/Borislavv/segment-registry/pkg/http/server/middleware"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type Server interface {
	ListenAndServe()
	Handler() fasthttp.RequestHandler
}

type HTTP struct {
	ctx    context.Context
	config *config.Config
	server *fasthttp.Server
}

func New(
	ctx context.Context,
	config *config.Config,
	controllers []controller.HttpController,
	middlewares []middleware.HttpMiddleware,
) (*HTTP, error) {
	if config == nil {
		return nil, errors.New("[server] config is nil")
	}
	s := &HTTP{ctx: ctx, config: config}
	s.initServer(s.buildRouter(controllers), middlewares)
	return s, nil
}

// ListenAndServe blocks until the context is done and the server has shut down.
func (s *HTTP) ListenAndServe() {
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	wg.Add(1)
	go s.serve(wg)

	wg.Add(1)
	go s.shutdown(wg)
}

// Handler exposes the composed handler, mostly for tests.
func (s *HTTP) Handler() fasthttp.RequestHandler {
	return s.server.Handler
}

func (s *HTTP) serve(wg *sync.WaitGroup) {
	defer wg.Done()

	name := s.config.Node.Api.Name
	port := s.config.Node.Api.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	log.Info().Msgf("[server] %v was started on %v", name, port)
	defer log.Info().Msgf("[server] %v was stopped on %v", name, port)

	if err := s.server.ListenAndServe(port); err != nil {
		log.Error().Err(err).Msgf("[server] %v failed to listen and serve port %v: %v", name, port, err.Error())
	}
}

func (s *HTTP) shutdown(wg *sync.WaitGroup) {
	defer wg.Done()

	<-s.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Msgf("[server] %v shutdown failed: %v", s.config.Node.Api.Name, err.Error())
		}
		return
	}
}

func (s *HTTP) buildRouter(controllers []controller.HttpController) *router.Router {
	r := router.New()
	for _, contr := range controllers {
		contr.AddRoute(r)
	}
	return r
}

func (s *HTTP) mergeMiddlewares(
	handler fasthttp.RequestHandler,
	middlewares []middleware.HttpMiddleware,
) fasthttp.RequestHandler {
	// last middlewares must be applied at the end
	// in this case we must start the cycle from the end of slice
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Middleware(handler)
	}
	return handler
}

func (s *HTTP) initServer(r *router.Router, middlewares []middleware.HttpMiddleware) {
	s.server = &fasthttp.Server{
		Handler:                      s.mergeMiddlewares(r.Handler, middlewares),
		ReduceMemoryUsage:            true,             // Admin traffic is light, prefer a small footprint.
		DisablePreParseMultipartForm: true,             // No multipart endpoints.
		CloseOnShutdown:              true,             // Close open connections on graceful shutdown.
		ReadTimeout:                  5 * time.Second,  // Segment loads happen after the request is read.
		WriteTimeout:                 30 * time.Second, // A PUT waits for the segment file to be loaded.
		IdleTimeout:                  60 * time.Second,
		TCPKeepalive:                 true,
		TCPKeepalivePeriod:           30 * time.Second,
		NoDefaultServerHeader:        true,
		MaxRequestBodySize:           1 << 20,
	}
}
