// Package rule implements host/path routing (RuleMatcher) and the
// per-rule runtime state (RuleRuntime: lazily-initialized load balancer,
// unhealthy-target set, per-client rate-limit buckets).
package rule

import (
	"strings"

	"github.com/vellum-proxy/vellum/internal/domain"
)

// Matcher picks the most specific rule for a (host, path) pair.
type Matcher struct {
	rules []domain.Rule
}

func NewMatcher(rules []domain.Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Match returns the index of the most specific matching rule, or -1 if
// none match. For CONNECT tunnels pass path="" — rules with a non-empty
// path are disqualified and the first remaining host match wins.
func (m *Matcher) Match(host, path string) int {
	host = strings.ToLower(host)

	best := -1
	bestHostSpecific := false
	bestPathSpecific := false
	bestPathLen := -1

	for i := range m.rules {
		r := &m.rules[i]

		if path == "" && r.Path != "" {
			continue
		}

		hostSpecific := r.Host != ""
		if hostSpecific && !strings.EqualFold(r.Host, host) {
			continue
		}

		pathSpecific := r.Path != ""
		if pathSpecific && path != "" && !pathMatches(r.Path, path) {
			continue
		}

		if best == -1 {
			best = i
			bestHostSpecific = hostSpecific
			bestPathSpecific = pathSpecific
			bestPathLen = len(r.Path)
			continue
		}

		// Host-bearing rules beat host-less rules.
		if hostSpecific != bestHostSpecific {
			if hostSpecific {
				best, bestHostSpecific, bestPathSpecific, bestPathLen = i, hostSpecific, pathSpecific, len(r.Path)
			}
			continue
		}

		// Among equal host specificity, path-bearing rules beat path-less.
		if pathSpecific != bestPathSpecific {
			if pathSpecific {
				best, bestPathSpecific, bestPathLen = i, pathSpecific, len(r.Path)
			}
			continue
		}

		// Among equal path specificity, longer rule.path wins.
		if pathSpecific && len(r.Path) > bestPathLen {
			best, bestPathLen = i, len(r.Path)
		}
	}

	return best
}

// pathMatches reports whether rulePath matches requestPath: equal,
// rulePath=="/", or requestPath begins with rulePath followed by "/".
func pathMatches(rulePath, requestPath string) bool {
	if rulePath == requestPath || rulePath == "/" {
		return true
	}
	return strings.HasPrefix(requestPath, rulePath) &&
		len(requestPath) > len(rulePath) &&
		requestPath[len(rulePath)] == '/'
}
