// Package router mounts the service routes and one route group per
// connector on a gin engine.
package router

import (
	"sort"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/interfaces/http/handler"
	"github.com/cardhub/connectors/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// RouteRegistrar is implemented by every connector handler
type RouteRegistrar interface {
	Register(rg *gin.RouterGroup)
}

type connector struct {
	name      string
	meta      hub.Metadata
	registrar RouteRegistrar
}

// Router manages HTTP route registration
type Router struct {
	engine          *gin.Engine
	system          *handler.SystemHandler
	groupMiddleware []gin.HandlerFunc
	connectors      []connector
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithGroupMiddleware adds middleware run inside every connector group,
// after the group is tagged with its connector name.
func WithGroupMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.groupMiddleware = append(r.groupMiddleware, mw...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, system *handler.SystemHandler, opts ...RouterOption) *Router {
	r := &Router{
		engine: engine,
		system: system,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a connector to be mounted under /{name}
func (r *Router) Register(name string, meta hub.Metadata, registrar RouteRegistrar) *Router {
	r.connectors = append(r.connectors, connector{name: name, meta: meta, registrar: registrar})
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	r.engine.GET("/health", r.system.Health)
	r.engine.GET("/discovery", r.system.Discovery)

	for _, c := range r.connectors {
		r.system.AddConnector(c.name, c.meta)

		group := r.engine.Group("/"+c.name, middleware.Connector(c.name))
		group.Use(r.groupMiddleware...)
		group.GET("/", r.system.Metadata(c.name))
		c.registrar.Register(group)
	}
}

// Routes returns the registered routes sorted by path, then method.
func (r *Router) Routes() gin.RoutesInfo {
	routes := r.engine.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}
