// Package http is the edge's HTTP surface: signed links, submits, artifact
// downloads and health probes.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/pkg/cryptox"
	"github.com/aussiebroadwan/printq/pkg/httpx"
	"github.com/aussiebroadwan/printq/pkg/jwtx"
	"github.com/aussiebroadwan/printq/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	requirement  jwtx.Requirement
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Dispatcher Dispatcher
	Links      *cryptox.LinkSigner
	Output     store.Bucket
	Checks     HealthChecks

	// Limit is charged per token subject on every authenticated route.
	Limit httpx.RateLimitConfig
}

func NewRouter(
	verifier jwtx.Verifier,
	req jwtx.Requirement,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		requirement:  req,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Limit:        httpx.DefaultLimit,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// Use appends global middleware. The access log stays outermost.
func (r *Router) Use(mws ...httpx.Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

func (r *Router) ApplyRoutes() {
	secured := []httpx.Middleware{
		httpx.Authenticate(r.verifier, r.requirement),
		httpx.RateLimit(r.Limit, httpx.SubjectKeyExtractor),
	}

	r.registerLinks(secured)
	r.registerSubmit(secured)
	r.registerArtifacts(secured)
	registerHealth(r.Mux, r.startTime, r.buildVersion, r.Checks)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLinks(mws []httpx.Middleware) {
	h := &LinkHandler{Links: r.Links}
	r.Mux.Handle("GET /link/{template}", httpx.Chain(h, mws...))
}

func (r *Router) registerSubmit(mws []httpx.Middleware) {
	secure := &SubmitHandler{Dispatcher: r.Dispatcher, Links: r.Links}
	r.Mux.Handle("POST /generate-secure/{template}", httpx.Chain(secure, mws...))

	// Legacy callers post directly without a link.
	direct := &SubmitHandler{Dispatcher: r.Dispatcher}
	r.Mux.Handle("POST /generate-pdf/{template}", httpx.Chain(direct, mws...))
}

func (r *Router) registerArtifacts(mws []httpx.Middleware) {
	h := &ArtifactHandler{Output: r.Output}
	r.Mux.Handle("GET /pdf/{id}", httpx.Chain(h, mws...))
}
