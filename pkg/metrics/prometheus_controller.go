// Package metrics serves the operational endpoints of the worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Controller interface {
	Key() string
	Register(r *mux.Router)
}

type PrometheusController struct {
	path string
}

func NewPrometheusController(path string) Controller {
	if path == "" {
		path = "/metrics"
	}
	return &PrometheusController{path: path}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.Handler()).Methods(http.MethodGet)
}

func NewRouter(controllers ...Controller) *mux.Router {
	r := mux.NewRouter()
	for _, c := range controllers {
		c.Register(r)
	}
	return r
}

// NewOpsServer returns the HTTP server serving controllers on addr behind
// the given middlewares.
func NewOpsServer(addr string, middlewares []mux.MiddlewareFunc, controllers ...Controller) *http.Server {
	r := NewRouter(controllers...)
	r.Use(middlewares...)
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
