package httpengine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/rule"
)

// streamThreshold is the §4.3.3 cutover point: bodies below this size are
// buffered in memory, bodies at or above it are streamed straight from the
// connection into the outbound request.
const streamThreshold = 64 * 1024

// handleRegular implements §4.3.3: target resolution, rate limiting,
// outbound request construction, manual redirect handling, and response
// forwarding (with reverse-proxy Location rewriting). It returns the
// final status code written to the client and the number of response
// body bytes forwarded.
func (e *Engine) handleRegular(conn io.Writer, r *bufio.Reader, method string, uri *url.URL, headers map[string]string, ruleIdx int, remoteIP string) (int, int64) {
	n := contentLength(headers)

	var bodyReader io.Reader
	var drain io.Reader
	if n > 0 {
		if n < streamThreshold {
			buf, err := readBody(r, headers)
			if err != nil {
				writeStatusLineOnly(conn, 400)
				return 400, 0
			}
			bodyReader = bytes.NewReader(buf)
		} else {
			lr := io.LimitReader(r, n)
			bodyReader = lr
			drain = lr
		}
	}
	// fail returns status after draining any unread streamed body, so a
	// rejection before the request reaches the wire doesn't desync the
	// connection for the next keep-alive request.
	fail := func(status int) (int, int64) {
		if drain != nil {
			_, _ = io.Copy(io.Discard, drain)
		}
		writeStatusLineOnly(conn, status)
		return status, 0
	}

	var rt *rule.Runtime
	var matchedRule *domain.Rule
	if ruleIdx >= 0 {
		rt = e.Runtimes[ruleIdx]
		matchedRule = &e.Listener.Rules[ruleIdx]

		if !rt.AllowRequest(remoteIP) {
			return fail(429)
		}
	} else if len(e.Listener.Rules) > 0 {
		return fail(404)
	}

	targetURL, err := resolveTargetURL(rt, matchedRule, uri, remoteIP)
	if err != nil {
		return fail(502)
	}

	outReq, err := http.NewRequest(method, targetURL, bodyReader)
	if err != nil {
		return fail(502)
	}
	if n > 0 {
		outReq.ContentLength = n
	}
	applyOutboundHeaders(outReq, headers, uri, remoteIP, matchedRule)

	resp, err := e.doWithRedirects(outReq)
	if err != nil {
		return fail(502)
	}
	defer resp.Body.Close()

	bytesOut := writeResponse(conn, resp, uri, matchedRule)
	return resp.StatusCode, bytesOut
}

// resolveTargetURL implements target resolution: no rule -> forward-proxy
// mode (absolute URI as-is); rule matched -> base from the load balancer
// plus the request path suffix and query string.
func resolveTargetURL(rt *rule.Runtime, r *domain.Rule, uri *url.URL, remoteIP string) (string, error) {
	if rt == nil {
		return uri.String(), nil
	}

	base, err := rt.ResolveTarget(remoteIP)
	if err != nil {
		return "", err
	}
	base = strings.TrimSuffix(base, "/")

	suffix := uri.Path
	if r.Path != "" && len(r.Path) <= len(suffix) {
		suffix = suffix[len(r.Path):]
	}
	if suffix == "" || suffix[0] != '/' {
		suffix = "/" + suffix
	}

	full := base + suffix
	if uri.RawQuery != "" {
		full += "?" + uri.RawQuery
	}
	return full, nil
}

func readBody(r *bufio.Reader, headers map[string]string) ([]byte, error) {
	n := contentLength(headers)
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func applyOutboundHeaders(outReq *http.Request, headers map[string]string, uri *url.URL, remoteIP string, matchedRule *domain.Rule) {
	for name, value := range headers {
		if isDisallowed(name) {
			continue
		}
		outReq.Header.Set(name, value)
	}

	xff := headers["x-forwarded-for"]
	if xff != "" {
		xff += ", " + remoteIP
	} else {
		xff = remoteIP
	}
	outReq.Header.Set("X-Forwarded-For", xff)
	outReq.Header.Set("X-Forwarded-Proto", uri.Scheme)
	outReq.Header.Set("X-Forwarded-Host", uri.Host)

	if matchedRule != nil {
		for name, value := range matchedRule.Headers {
			outReq.Header.Set(name, value)
		}
	}
}

// doWithRedirects issues outReq and follows up to maxRedirects 3xx
// responses manually, draining each intermediate body and re-issuing with
// an empty body per §4.3.3 (only the initial request can redeliver a
// body).
func (e *Engine) doWithRedirects(outReq *http.Request) (*http.Response, error) {
	maxRedirects := e.Listener.MaxRedirects

	req := outReq
	for i := 0; ; i++ {
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 300 || resp.StatusCode >= 400 || i >= maxRedirects {
			return resp, nil
		}

		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return resp, nil
		}

		nextURL, err := req.URL.Parse(loc)
		if err != nil {
			return resp, nil
		}

		next, err := http.NewRequest(req.Method, nextURL.String(), nil)
		if err != nil {
			return nil, err
		}
		next.Header = req.Header.Clone()
		req = next
	}
}

// writeResponse writes the status line, headers (minus hop-by-hop, with
// reverse-mode Location/Content-Location rewriting) and body, and returns
// the number of body bytes written.
func writeResponse(w io.Writer, resp *http.Response, uri *url.URL, matchedRule *domain.Rule) int64 {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.StatusCode, reasonPhrase(resp.StatusCode))

	reverse := matchedRule != nil && matchedRule.Reverse
	publicBase := publicBaseURL(uri, matchedRule)

	for _, pair := range sortedHeaderPairs(resp.Header) {
		v := pair.Value
		if reverse && (strings.EqualFold(pair.Key, "Location") || strings.EqualFold(pair.Key, "Content-Location")) {
			v = rewriteLocation(v, matchedRule, publicBase)
		}
		fmt.Fprintf(w, "%s: %s\r\n", pair.Key, v)
	}
	fmt.Fprint(w, "\r\n")

	n, _ := io.Copy(w, resp.Body)
	return n
}

func publicBaseURL(uri *url.URL, matchedRule *domain.Rule) string {
	if matchedRule == nil {
		return ""
	}
	base := uri.Scheme + "://" + uri.Hostname()
	if p := uri.Port(); p != "" {
		if !(uri.Scheme == "http" && p == "80") && !(uri.Scheme == "https" && p == "443") {
			base += ":" + p
		}
	}
	return base + matchedRule.Path
}

// rewriteLocation replaces a matching backend target prefix with the
// public proxy base URL, per reverse mode.
func rewriteLocation(value string, matchedRule *domain.Rule, publicBase string) string {
	if matchedRule == nil {
		return value
	}
	for _, t := range matchedRule.GetAllTargets() {
		if strings.HasPrefix(value, t) {
			return publicBase + strings.TrimPrefix(value, t)
		}
	}
	return value
}
