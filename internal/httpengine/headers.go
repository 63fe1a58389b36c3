package httpengine

import (
	"net/http"
	"sort"
	"strings"
)

// disallowed headers are stripped from the outbound request; case-insensitive.
var disallowed = map[string]struct{}{
	"host":                {},
	"proxy-authorization": {},
	"connection":          {},
	"content-length":      {},
	"transfer-encoding":   {},
}

// hopByHop headers are never forwarded in the response.
var hopByHop = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func isDisallowed(name string) bool {
	_, ok := disallowed[strings.ToLower(name)]
	return ok
}

func isHopByHop(name string) bool {
	_, ok := hopByHop[strings.ToLower(name)]
	return ok
}

// HeaderPair is one response header name/value to emit. net/http's
// Response.Header is a map, so the backend's wire order is already lost by
// the time we see it; sortedHeaderPairs rebuilds a deterministic order from
// it instead of relying on Go's randomized map iteration (Open Question c).
type HeaderPair struct {
	Key   string
	Value string
}

// sortedHeaderPairs flattens h into a deterministic, alphabetically sorted
// slice, skipping hop-by-hop headers and expanding multi-value headers into
// one pair per value in their original (per-key) order.
func sortedHeaderPairs(h http.Header) []HeaderPair {
	names := make([]string, 0, len(h))
	for name := range h {
		if isHopByHop(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]HeaderPair, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			pairs = append(pairs, HeaderPair{Key: name, Value: v})
		}
	}
	return pairs
}

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	407: "Proxy Authentication Required",
	408: "Request Timeout",
	429: "Too Many Requests",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

func reasonPhrase(status int) string {
	if r, ok := reasonPhrases[status]; ok {
		return r
	}
	return "Unknown"
}
