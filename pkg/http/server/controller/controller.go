package controller

import "github.com/fasthttp/router"

// HttpController mounts its handlers on the router.
type HttpController interface {
	AddRoute(r *router.Router)
}
