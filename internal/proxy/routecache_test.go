package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-auth/gateway/internal/config"
	"github.com/arc-auth/gateway/internal/models"
)

const testAuthAPI = "http://127.0.0.1:8081"

func TestRouteCache_ImplicitAuthRule(t *testing.T) {
	c := NewRouteCache(testAuthAPI)

	route, ok := c.Match("/auth/login/init")
	require.True(t, ok)
	assert.Equal(t, testAuthAPI, route.Upstream)
	assert.False(t, route.RequireAuth)

	// A dynamic route cannot shadow /auth/*: the implicit rule is static
	// and static wins the tie at equal prefix length.
	c.Set(nil, []models.ProxyRoute{
		{Path: "/auth", Upstream: "http://evil:1", RequireAuth: false, Enabled: true},
	})
	route, ok = c.Match("/auth/login/init")
	require.True(t, ok)
	assert.Equal(t, testAuthAPI, route.Upstream)
}

func TestRouteCache_LongestPrefixWins(t *testing.T) {
	c := NewRouteCache(testAuthAPI)
	c.Set(
		[]config.Route{
			{Path: "/api", Upstream: "http://short:1", Auth: true},
		},
		[]models.ProxyRoute{
			{Path: "/api/v1/reports", Upstream: "http://long:1", RequireAuth: true},
		},
	)

	route, ok := c.Match("/api/v1/reports/weekly")
	require.True(t, ok)
	assert.Equal(t, "http://long:1", route.Upstream)

	route, ok = c.Match("/api/v1/users")
	require.True(t, ok)
	assert.Equal(t, "http://short:1", route.Upstream)
}

func TestRouteCache_StaticBeatsDynamicAtEqualLength(t *testing.T) {
	c := NewRouteCache(testAuthAPI)
	c.Set(
		[]config.Route{
			{Path: "/svc", Upstream: "http://static:1", Auth: true},
		},
		[]models.ProxyRoute{
			{Path: "/svc", Upstream: "http://dynamic:1", RequireAuth: false},
		},
	)

	route, ok := c.Match("/svc/anything")
	require.True(t, ok)
	assert.Equal(t, "http://static:1", route.Upstream)
	assert.True(t, route.RequireAuth)
}

func TestRouteCache_PrefixBoundary(t *testing.T) {
	c := NewRouteCache(testAuthAPI)
	c.Set([]config.Route{
		{Path: "/api", Upstream: "http://api:1", Auth: true},
	}, nil)

	// "/apiary" shares the byte prefix but not the path-segment prefix.
	_, ok := c.Match("/apiary")
	assert.False(t, ok)

	route, ok := c.Match("/api")
	require.True(t, ok)
	assert.Equal(t, "http://api:1", route.Upstream)
}

func TestRouteCache_NoMatch(t *testing.T) {
	c := NewRouteCache(testAuthAPI)

	_, ok := c.Match("/nowhere")
	assert.False(t, ok)
}

func TestRouteCache_TrailingSlashNormalized(t *testing.T) {
	c := NewRouteCache(testAuthAPI)
	c.Set([]config.Route{
		{Path: "/api/", Upstream: "http://api:1", Auth: false},
	}, nil)

	route, ok := c.Match("/api/v1/x")
	require.True(t, ok)
	assert.Equal(t, "http://api:1", route.Upstream)
}
