package main

import (
	"github.com/julienschmidt/httprouter"
)

// MiddlewareMap contains the middlewares chains to
// use for catalog and ops requests.
type MiddlewareMap struct {
	public MiddlewareFunc
	ops    MiddlewareFunc
}

// SetupRoutes injects book and ops related endpoints if required.
func (api *APIHandler) SetupRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.NotFound = api.NotFound()
	api.SetupBookRoutes(router, m)
	if api.config.Server.OpsEnable {
		api.SetupOpsRoutes(router, m)
	}
	return router
}
