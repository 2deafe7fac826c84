package middleware

import (
	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/valyala/fasthttp"
)

type ServerNameMiddleware struct {
	serverName []byte
}

func NewServerNameMiddleware(cfg *config.Config) ServerNameMiddleware {
	return ServerNameMiddleware{serverName: []byte(cfg.Node.Api.Name)}
}

func (f ServerNameMiddleware) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		ctx.Response.Header.SetServerBytes(f.serverName)
	}
}
