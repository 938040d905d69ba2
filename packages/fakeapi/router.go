package fakeapi

import (
	"net/http"
	"regexp"
	"strings"
)

// HandlerFunc serves a matched route; params holds the named path segments.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

// Route binds a method and path pattern such as /api/users/{id} to a handler.
type Route struct {
	Method      string
	PathPattern string
	PathRegex   *regexp.Regexp
	Name        string
	Handler     HandlerFunc
}

// Router matches incoming requests to routes in registration order.
type Router struct {
	routes []*Route
}

func NewRouter() *Router {
	return &Router{
		routes: make([]*Route, 0),
	}
}

// Handle registers a route. Segments written as {name} become parameters.
func (r *Router) Handle(method, pattern, name string, h HandlerFunc) {
	r.routes = append(r.routes, &Route{
		Method:      method,
		PathPattern: pattern,
		PathRegex:   createPathRegex(pattern),
		Name:        name,
		Handler:     h,
	})
}

// Match finds a route for method and path. The boolean reports whether
// the path exists under any method, which separates 404 from 405.
func (r *Router) Match(method, path string) (*Route, map[string]string, bool) {
	path = normalizePath(path)
	pathKnown := false

	for _, route := range r.routes {
		params := matchPath(route, path)
		if params == nil {
			continue
		}
		pathKnown = true
		if strings.EqualFold(route.Method, method) {
			return route, params, true
		}
	}

	return nil, nil, pathKnown
}

func (r *Router) Routes() []*Route {
	return r.routes
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

var paramPattern = regexp.MustCompile(`\{(\w+)\}`)

func createPathRegex(pattern string) *regexp.Regexp {
	parts := paramPattern.Split(pattern, -1)
	names := paramPattern.FindAllStringSubmatch(pattern, -1)

	var b strings.Builder
	b.WriteString("^")
	for i, part := range parts {
		b.WriteString(regexp.QuoteMeta(part))
		if i < len(names) {
			b.WriteString("(?P<" + names[i][1] + ">[^/]+)")
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func matchPath(route *Route, path string) map[string]string {
	matches := route.PathRegex.FindStringSubmatch(path)
	if matches == nil {
		return nil
	}
	params := make(map[string]string)
	for i, name := range route.PathRegex.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = matches[i]
		}
	}
	return params
}
