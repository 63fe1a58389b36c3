// Package httpengine implements the per-connection HTTP/1.1 proxy loop:
// request parsing, CONNECT and WebSocket tunneling, rule-based forwarding
// with redirects and reverse-proxy rewriting.
package httpengine

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vellum-proxy/vellum/internal/auth"
	"github.com/vellum-proxy/vellum/internal/balancer"
	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/relay"
	"github.com/vellum-proxy/vellum/internal/rule"
	"github.com/vellum-proxy/vellum/internal/upstream"
)

// Metrics is the subset of metrics.Sink the engine reports against,
// already bound to this listener's {type, name} label pair.
type Metrics interface {
	IncRequests()
	IncBytesSent(n int64)
	IncBytesReceived(n int64)
}

// AccessLogger is the post-request logging collaborator.
type AccessLogger interface {
	LogHTTP(remoteIP, user, method, uri string, status int, bytes int64)
}

// Engine runs the per-connection request loop for one HTTP listener.
type Engine struct {
	Listener   *domain.ListenerConfig
	Matcher    *rule.Matcher
	Runtimes   []*rule.Runtime // parallel to Listener.Rules
	Metrics    Metrics
	LBRegistry *balancer.Registry

	// preHandlers and postHandlers implement §4.3 step 5's chain: each
	// PreHandler runs in order before routing, any denial short-circuits
	// the request; each PostHandler runs after the response is written.
	preHandlers  []auth.PreHandler
	postHandlers []auth.PostHandler

	client *http.Client
}

// NewEngine builds an Engine for one listener's configuration and runtime
// rule state. authFilter, when non-nil, is the sole pre-handler; accessLog,
// when non-nil, is wrapped in a LoggingFilter as the sole post-handler.
func NewEngine(l *domain.ListenerConfig, matcher *rule.Matcher, runtimes []*rule.Runtime, authFilter *auth.AuthFilter, accessLog AccessLogger, m Metrics) *Engine {
	timeout := time.Duration(l.TimeoutOrDefault(true)) * time.Millisecond

	var pre []auth.PreHandler
	if authFilter != nil {
		pre = append(pre, authFilter)
	}
	var post []auth.PostHandler
	if accessLog != nil {
		post = append(post, &auth.LoggingFilter{Sink: accessLog})
	}

	return &Engine{
		Listener:     l,
		Matcher:      matcher,
		Runtimes:     runtimes,
		Metrics:      m,
		preHandlers:  pre,
		postHandlers: post,
		client:       newClient(l.UpstreamProxy, timeout),
	}
}

// Handle runs the request loop for one accepted connection until the
// client disconnects or a non-keepalive response is sent.
func (e *Engine) Handle(conn net.Conn, remoteIP string) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	timeout := time.Duration(e.Listener.TimeoutOrDefault(true)) * time.Millisecond

	for {
		if timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
		}

		line, err := readRequestLine(r)
		if err != nil || line == "" {
			return
		}

		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			writeStatusLineOnly(conn, 400)
			return
		}
		method, target := parts[0], parts[1]

		headers, err := readHeaders(r)
		if err != nil {
			writeStatusLineOnly(conn, 400)
			return
		}

		uri, err := parseRequestTarget(method, target, headers)
		if err != nil {
			writeStatusLineOnly(conn, 400)
			return
		}

		reqCtx := &auth.RequestContext{
			Method:   method,
			URI:      uri.String(),
			Headers:  headers,
			RemoteIP: remoteIP,
		}

		if allowed, authErr := e.runPreHandlers(reqCtx); !allowed {
			drainBody(r, headers)
			writeAuthChallenge(conn, authErr)
			return
		}

		if e.Metrics != nil {
			e.Metrics.IncRequests()
		}

		if method == http.MethodConnect {
			e.handleConnect(conn, target)
			return
		}

		ruleIdx := e.Matcher.Match(uri.Host, uri.Path)
		if strings.EqualFold(headers["upgrade"], "websocket") {
			e.handleWebSocket(conn, r, line, headers, uri, ruleIdx)
			return
		}

		status, bytesOut := e.handleRegular(conn, r, method, uri, headers, ruleIdx, remoteIP)
		reqCtx.Status = status
		reqCtx.Bytes = bytesOut
		e.runPostHandlers(reqCtx)

		if !e.Listener.KeepAlive || strings.EqualFold(headers["connection"], "close") {
			return
		}
	}
}

// runPreHandlers runs the pre-handler chain in order, stopping at the
// first denial.
func (e *Engine) runPreHandlers(ctx *auth.RequestContext) (bool, error) {
	for _, h := range e.preHandlers {
		allowed, err := h.PreHandle(ctx)
		if !allowed {
			return false, err
		}
	}
	return true, nil
}

// runPostHandlers runs every post-handler after the response has been
// written; order is insignificant since each acts independently.
func (e *Engine) runPostHandlers(ctx *auth.RequestContext) {
	for _, h := range e.postHandlers {
		h.PostHandle(ctx)
	}
}

func (e *Engine) handleConnect(conn net.Conn, target string) {
	host, port, err := splitHostPort(target, 443)
	if err != nil {
		writeStatusLineOnly(conn, 502)
		return
	}

	timeout := time.Duration(e.Listener.TimeoutOrDefault(true)) * time.Millisecond
	up, err := upstream.Connect(host, port, e.Listener.UpstreamProxy, timeout)
	if err != nil {
		writeStatusLineOnly(conn, 502)
		return
	}
	defer up.Close()

	conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	_ = conn.SetReadDeadline(time.Time{})
	relay.Relay(conn, up, relay.Counters{})
}

func (e *Engine) handleWebSocket(conn net.Conn, r *bufio.Reader, requestLine string, headers map[string]string, uri *url.URL, ruleIdx int) {
	targetURL := uri.String()
	var rt *rule.Runtime
	if ruleIdx >= 0 {
		rt = e.Runtimes[ruleIdx]
		resolved, err := rt.ResolveTarget("")
		if err == nil && resolved != "" {
			targetURL = resolved
		}
	}

	u, err := url.Parse(targetURL)
	if err != nil {
		writeStatusLineOnly(conn, 502)
		return
	}
	port := defaultPortFor(u)

	timeout := time.Duration(e.Listener.TimeoutOrDefault(true)) * time.Millisecond
	up, err := upstream.Connect(u.Hostname(), port, e.Listener.UpstreamProxy, timeout)
	if err != nil {
		writeStatusLineOnly(conn, 502)
		return
	}
	defer up.Close()

	var sb strings.Builder
	sb.WriteString(requestLine + "\r\n")
	for k, v := range headers {
		sb.WriteString(k + ": " + v + "\r\n")
	}
	sb.WriteString("\r\n")
	if _, err := up.Write([]byte(sb.String())); err != nil {
		return
	}

	_ = conn.SetReadDeadline(time.Time{})
	relay.Relay(conn, up, relay.Counters{})
}

func defaultPortFor(u *url.URL) int {
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err == nil {
			return port
		}
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

func writeStatusLineOnly(w io.Writer, status int) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n\r\n", status, reasonPhrase(status))
}

func writeAuthChallenge(w io.Writer, err error) {
	var authErr *domain.AuthError
	if e, ok := err.(*domain.AuthError); ok {
		authErr = e
	}
	_ = authErr
	fmt.Fprintf(w, "HTTP/1.1 407 %s\r\nProxy-Authenticate: Basic realm=\"proxy\"\r\n\r\n", reasonPhrase(407))
}

func drainBody(r *bufio.Reader, headers map[string]string) {
	n := contentLength(headers)
	if n <= 0 {
		return
	}
	_, _ = io.CopyN(io.Discard, r, n)
}

func contentLength(headers map[string]string) int64 {
	v := headers["content-length"]
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
