package proxy

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
)

// Proxy is the edge proxy handler: it matches a route, enforces
// authentication, and forwards the request to the route's upstream,
// via a streaming reverse proxy for ordinary HTTP or a byte-for-byte
// WebSocket bridge for upgrade requests.
type Proxy struct {
	routes  *RouteCache
	auth    *Authenticator
	timeout time.Duration

	upstreamDialer *websocket.Dialer
}

// NewProxy builds a Proxy. timeout bounds ordinary (non-upgraded)
// upstream requests; upgraded connections are exempt once the handshake
// completes.
func NewProxy(routes *RouteCache, auth *Authenticator, timeout time.Duration) *Proxy {
	return &Proxy{
		routes:  routes,
		auth:    auth,
		timeout: timeout,
		upstreamDialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the gin.HandlerFunc mounted as the proxy's catch-all
// route.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := p.routes.Match(c.Request.URL.Path)
		if !ok {
			apperrors.AbortWithError(c, apperrors.NotFound("route"))
			return
		}

		if !p.auth.Authenticate(c, route) {
			return
		}

		if IsUpgradeRequest(c.Request) && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			p.bridgeWebSocket(c, route)
			return
		}

		p.forward(c, route)
	}
}

func (p *Proxy) forward(c *gin.Context, route Route) {
	target, err := url.Parse(route.Upstream)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.BadGateway())
		return
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		if route.StripPrefix != "" {
			req.URL.Path = strings.TrimPrefix(req.URL.Path, route.StripPrefix)
			if req.URL.Path == "" {
				req.URL.Path = "/"
			}
		}
		req.Host = target.Host
		if route.RequireAuth {
			req.Header.Del("Authorization")
			req.Header.Del("X-API-Key")
		}
	}

	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Proxy().Warn().Err(err).Str("upstream", route.Upstream).Msg("upstream request failed")
		apperrors.AbortWithError(c, apperrors.BadGateway())
	}

	ctx := c.Request.Context()
	if !isStreamingRequest(c.Request) && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	c.Request = c.Request.WithContext(ctx)

	rp.ServeHTTP(c.Writer, c.Request)
}

// isStreamingRequest reports whether r should be exempt from the
// ordinary per-request timeout: SSE responses are expected to stay open
// until a peer disconnects.
func isStreamingRequest(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
}

// bridgeWebSocket completes the WebSocket handshake with the client,
// dials the matched upstream, and pumps frames in both directions until
// either side closes. Authentication already happened once, in
// p.auth.Authenticate, before this is ever called.
func (p *Proxy) bridgeWebSocket(c *gin.Context, route Route) {
	upstreamURL, err := toWebSocketURL(route.Upstream, c.Request.URL.Path, route.StripPrefix, c.Request.URL.RawQuery)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.BadGateway())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	clientConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Proxy().Warn().Err(err).Msg("client websocket upgrade failed")
		return
	}
	defer clientConn.Close()

	forwardHeaders := make(http.Header)
	for _, h := range []string{HeaderUserID, HeaderCallerID, HeaderPermissions} {
		if v := c.Request.Header.Get(h); v != "" {
			forwardHeaders.Set(h, v)
		}
	}

	upstreamConn, _, err := p.upstreamDialer.Dial(upstreamURL, forwardHeaders)
	if err != nil {
		logger.Proxy().Warn().Err(err).Str("upstream", upstreamURL).Msg("upstream websocket dial failed")
		clientConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unavailable"))
		return
	}
	defer upstreamConn.Close()

	done := make(chan struct{}, 2)
	go pumpWebSocket(clientConn, upstreamConn, done)
	go pumpWebSocket(upstreamConn, clientConn, done)
	<-done
}

func pumpWebSocket(src, dst *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		msgType, msg, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(msgType, msg); err != nil {
			return
		}
	}
}

func toWebSocketURL(upstream, path, stripPrefix, rawQuery string) (string, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	if stripPrefix != "" {
		path = strings.TrimPrefix(path, stripPrefix)
		if path == "" {
			path = "/"
		}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = rawQuery
	return u.String(), nil
}
