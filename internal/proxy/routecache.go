// Package proxy implements the public-facing edge proxy: it
// authenticates requests on protected routes against either a JWT access
// token or an API key, then forwards them to the route's upstream,
// stripping auth material and injecting server-controlled identity
// headers in its place. Routes whose RequireAuth is false skip
// authentication; the implicit "/auth" route, which forwards to the
// loopback-bound Auth API, is one of them.
package proxy

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/arc-auth/gateway/internal/config"
	"github.com/arc-auth/gateway/internal/models"
)

// Route is the proxy's resolved view of a forwarding rule, merged from
// config.Route (static) and models.ProxyRoute (dynamic) into one shape
// so matching doesn't need to know which source a route came from.
type Route struct {
	Path        string
	Upstream    string
	RequireAuth bool
	StripPrefix string

	// Static marks a route loaded from config rather than the
	// database. Static routes win ties against dynamic routes of the
	// same path length.
	Static bool
}

// authAPIPath is the implicit catch-all: requests under this prefix skip
// authentication and are forwarded as-is to the auth API, unless a longer
// static or dynamic route also matches them (Match picks the longest
// prefix across all routes).
const authAPIPath = "/auth"

// RouteCache holds the effective, merged route table behind an
// atomic.Pointer, so lookups never block a concurrent rebuild.
type RouteCache struct {
	routes      atomic.Pointer[[]Route]
	authAPIBase string
}

// NewRouteCache builds a RouteCache whose implicit /auth/* rule forwards
// to authAPIBase (the loopback address the Auth API listens on).
func NewRouteCache(authAPIBase string) *RouteCache {
	c := &RouteCache{authAPIBase: authAPIBase}
	c.Set(nil, nil)
	return c
}

// Set rebuilds the effective route table from static (config) and
// dynamic (database, already filtered to enabled) routes, and swaps it
// in atomically. Safe to call concurrently with Match.
func (c *RouteCache) Set(static []config.Route, dynamic []models.ProxyRoute) {
	routes := make([]Route, 0, len(static)+len(dynamic)+1)

	routes = append(routes, Route{
		Path:        authAPIPath,
		Upstream:    c.authAPIBase,
		RequireAuth: false,
		StripPrefix: "",
		Static:      true,
	})

	for _, s := range static {
		routes = append(routes, Route{
			Path:        normalizePath(s.Path),
			Upstream:    s.Upstream,
			RequireAuth: s.Auth,
			StripPrefix: "",
			Static:      true,
		})
	}

	for _, d := range dynamic {
		routes = append(routes, Route{
			Path:        normalizePath(d.Path),
			Upstream:    d.Upstream,
			RequireAuth: d.RequireAuth,
			StripPrefix: d.StripPrefix,
			Static:      false,
		})
	}

	c.routes.Store(&routes)
}

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimSuffix(p, "/")
}

// Match returns the longest-prefix route whose Path bounds requestPath
// at a '/' boundary (or an exact match), with static routes winning ties
// against dynamic routes of the same length. The implicit
// /auth/* rule always wins over any same-length route since it is
// always first in the static-wins ordering and is itself static.
func (c *RouteCache) Match(requestPath string) (Route, bool) {
	routes := *c.routes.Load()

	var best Route
	var bestLen = -1
	var found bool

	for _, r := range routes {
		if !pathMatches(r.Path, requestPath) {
			continue
		}
		l := len(r.Path)
		switch {
		case l > bestLen:
			best, bestLen, found = r, l, true
		case l == bestLen && r.Static && !best.Static:
			best = r
		}
	}

	return best, found
}

func pathMatches(routePath, requestPath string) bool {
	if routePath == "/" {
		return true
	}
	if requestPath == routePath {
		return true
	}
	return strings.HasPrefix(requestPath, routePath+"/")
}

// RefreshInterval is how often the proxy polls the dynamic route table
// in the absence of an explicit admin-triggered invalidation signal, so
// route edits take effect without a restart either way.
const RefreshInterval = 10 * time.Second
