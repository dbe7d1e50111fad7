// Package wsmux is a small path-and-method HTTP router: a WebSocket
// upgrade route keyed on a single path template, and a couple of plain
// health/metrics endpoints alongside it. There is no host matching,
// header/query matching, or subrouters -- nothing in a single-endpoint
// echo server calls for them.
package wsmux

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// ErrNotFound and ErrMethodNotAllowed distinguish a dead path from a path
// that matched but not for the request's method, so callers can render
// 404 vs 405 correctly.
var (
	ErrNotFound         = errors.New("wsmux: no matching route")
	ErrMethodNotAllowed = errors.New("wsmux: method not allowed")
)

// Route is one registered path template plus the methods it accepts.
type Route struct {
	pattern *regexp.Regexp
	varsN   []string
	methods map[string]bool
	handler http.Handler
}

// Router matches incoming requests against a list of Routes in
// registration order.
type Router struct {
	routes          []*Route
	middlewares     []MiddlewareFunc
	NotFoundHandler http.Handler
}

// MiddlewareFunc wraps a handler to add behavior before/after it runs.
type MiddlewareFunc func(http.Handler) http.Handler

// Use appends middleware applied, in registration order, to every matched
// route's handler (not to the NotFoundHandler/405 path).
func (router *Router) Use(mw ...MiddlewareFunc) {
	router.middlewares = append(router.middlewares, mw...)
}

func (router *Router) applyMiddleware(handler http.Handler) http.Handler {
	for i := len(router.middlewares) - 1; i >= 0; i-- {
		handler = router.middlewares[i](handler)
	}
	return handler
}

func NewRouter() *Router {
	return &Router{}
}

// pathVarPattern matches a {name} path template segment. There is no
// per-variable regexp override -- a variable always matches one non-slash
// path segment.
var pathVarPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Handle registers handler for path (a template like "/rooms/{id}") and
// the given methods. An empty methods list accepts any method.
func (router *Router) Handle(path string, handler http.Handler, methods ...string) *Route {
	var varsN []string
	for _, m := range pathVarPattern.FindAllStringSubmatch(path, -1) {
		varsN = append(varsN, m[1])
	}
	// Split on the {var} placeholders, quote the literal segments between
	// them (so a literal "." or "+" in a path isn't misread as regexp
	// syntax), and splice in a single-segment capture group for each var.
	segments := pathVarPattern.Split(path, -1)
	var tpl strings.Builder
	for i, seg := range segments {
		tpl.WriteString(regexp.QuoteMeta(seg))
		if i < len(segments)-1 {
			tpl.WriteString(`([^/]+)`)
		}
	}

	pattern := regexp.MustCompile("^" + tpl.String() + "$")

	methodSet := map[string]bool{}
	for _, m := range methods {
		methodSet[strings.ToUpper(m)] = true
	}

	route := &Route{pattern: pattern, varsN: varsN, methods: methodSet, handler: handler}
	router.routes = append(router.routes, route)
	return route
}

// HandleFunc is the http.HandlerFunc-accepting equivalent of Handle.
func (router *Router) HandleFunc(path string, f http.HandlerFunc, methods ...string) *Route {
	return router.Handle(path, f, methods...)
}

// Match finds the route for req, returning ErrMethodNotAllowed instead of
// ErrNotFound when a path matched but no registered route accepted the
// method.
func (router *Router) Match(req *http.Request) (*Route, map[string]string, error) {
	methodMismatch := false
	for _, route := range router.routes {
		m := route.pattern.FindStringSubmatch(req.URL.Path)
		if m == nil {
			continue
		}
		if len(route.methods) > 0 && !route.methods[req.Method] {
			methodMismatch = true
			continue
		}
		vars := make(map[string]string, len(route.varsN))
		for i, name := range route.varsN {
			vars[name] = m[i+1]
		}
		return route, vars, nil
	}
	if methodMismatch {
		return nil, nil, ErrMethodNotAllowed
	}
	return nil, nil, ErrNotFound
}

func (router *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	route, vars, err := router.Match(req)
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	case errors.Is(err, ErrNotFound):
		if router.NotFoundHandler != nil {
			router.NotFoundHandler.ServeHTTP(w, req)
			return
		}
		http.NotFound(w, req)
		return
	}
	if len(vars) > 0 {
		req = withVars(req, vars)
	}
	router.applyMiddleware(route.handler).ServeHTTP(w, req)
}

type varsKey struct{}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), varsKey{}, vars))
}

// Vars returns the path variables extracted for the matched route, if any.
func Vars(r *http.Request) map[string]string {
	vars, _ := r.Context().Value(varsKey{}).(map[string]string)
	return vars
}
