// Package domain holds the immutable configuration value types the rest of
// the proxy is built around: Configuration, ListenerConfig, Rule and the
// upstream-proxy descriptor. Values here are snapshots handed out by the
// config provider; nothing in this package mutates after construction.
package domain

import "strconv"

type ListenerType string

const (
	ListenerHTTP   ListenerType = "HTTP"
	ListenerSOCKS4 ListenerType = "SOCKS4"
	ListenerSOCKS5 ListenerType = "SOCKS5"
)

type LoadBalancing string

const (
	RoundRobin LoadBalancing = "ROUND_ROBIN"
	IPHash     LoadBalancing = "IP_HASH"
	Custom     LoadBalancing = "CUSTOM"
)

type UpstreamProxyType string

const (
	UpstreamHTTP   UpstreamProxyType = "HTTP"
	UpstreamSOCKS5 UpstreamProxyType = "SOCKS5"
)

// UpstreamProxyConfig describes a proxy the connector should chain through
// instead of dialing the target directly.
type UpstreamProxyConfig struct {
	Host     string
	Port     int
	Type     UpstreamProxyType
	Username string
	Password string
}

func (u *UpstreamProxyConfig) Equal(o *UpstreamProxyConfig) bool {
	if u == nil || o == nil {
		return u == o
	}
	return *u == *o
}

// Rule is one routing entry within a listener. Host/path are optional;
// Target or Targets names the backend(s).
type Rule struct {
	Host    string
	Path    string
	Target  string
	Targets []string

	Headers map[string]string

	UpstreamProxy *UpstreamProxyConfig
	Reverse       bool

	HealthCheckPath          string
	HealthCheckIntervalMs    int
	HealthCheckTimeoutMs     int

	RateLimit float64
	Burst     int

	LoadBalancing      LoadBalancing
	CustomLoadBalancer string
}

// GetAllTargets returns Target and Targets merged, deduplicated, in the
// order first seen.
func (r *Rule) GetAllTargets() []string {
	seen := make(map[string]struct{}, len(r.Targets)+1)
	out := make([]string, 0, len(r.Targets)+1)
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	add(r.Target)
	for _, t := range r.Targets {
		add(t)
	}
	return out
}

func (r *Rule) HealthCheckIntervalOrDefault() int {
	if r.HealthCheckIntervalMs == 0 {
		return 10000
	}
	return r.HealthCheckIntervalMs
}

func (r *Rule) HealthCheckTimeoutOrDefault() int {
	if r.HealthCheckTimeoutMs == 0 {
		return 5000
	}
	return r.HealthCheckTimeoutMs
}

// BurstOrDefault returns the configured burst, or a rate-derived default
// of max(1, ceil(rateLimit)) when burst is unset.
func (r *Rule) BurstOrDefault() int {
	if r.Burst > 0 {
		return r.Burst
	}
	b := int(r.RateLimit)
	if float64(b) < r.RateLimit {
		b++
	}
	if b < 1 {
		b = 1
	}
	return b
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal reports structural equality, including UpstreamProxy, per the
// inclusive variant chosen over the source's inconsistent Rule.equals.
func (r *Rule) Equal(o *Rule) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Host == o.Host &&
		r.Path == o.Path &&
		r.Target == o.Target &&
		stringSliceEqual(r.Targets, o.Targets) &&
		stringMapEqual(r.Headers, o.Headers) &&
		r.UpstreamProxy.Equal(o.UpstreamProxy) &&
		r.Reverse == o.Reverse &&
		r.HealthCheckPath == o.HealthCheckPath &&
		r.HealthCheckIntervalMs == o.HealthCheckIntervalMs &&
		r.HealthCheckTimeoutMs == o.HealthCheckTimeoutMs &&
		r.RateLimit == o.RateLimit &&
		r.Burst == o.Burst &&
		r.LoadBalancing == o.LoadBalancing &&
		r.CustomLoadBalancer == o.CustomLoadBalancer
}

// ListenerConfig is one bound-socket configuration.
type ListenerConfig struct {
	Name string
	Port int
	Type ListenerType

	Rules []Rule

	AuthEnabled bool
	KeepAlive   bool
	TimeoutMs   int

	MaxRedirects   int
	MaxConnections int

	BindAddress string

	TLSEnabled       bool
	KeystorePath     string
	KeystorePassword string

	Blacklist []string

	UpstreamProxy *UpstreamProxyConfig
}

// Key returns the stable identity the orchestrator diffs by: Name if set,
// else the port as a string.
func (l *ListenerConfig) Key() string {
	if l.Name != "" {
		return l.Name
	}
	return strconv.Itoa(l.Port)
}

func (l *ListenerConfig) TimeoutOrDefault(isHTTP bool) int {
	switch l.TimeoutMs {
	case -1:
		return 0 // 0 == no deadline downstream
	case 0:
		if isHTTP {
			return 60000
		}
		return 5000
	default:
		return l.TimeoutMs
	}
}

func (l *ListenerConfig) MaxConnectionsOrDefault() int {
	if l.MaxConnections == 0 {
		return 10000
	}
	return l.MaxConnections
}

// Equal reports full structural equality across every field, including
// Rules and Blacklist, which drives the orchestrator's restart decision.
func (l *ListenerConfig) Equal(o *ListenerConfig) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.Name != o.Name || l.Port != o.Port || l.Type != o.Type ||
		l.AuthEnabled != o.AuthEnabled || l.KeepAlive != o.KeepAlive ||
		l.TimeoutMs != o.TimeoutMs || l.MaxRedirects != o.MaxRedirects ||
		l.MaxConnections != o.MaxConnections || l.BindAddress != o.BindAddress ||
		l.TLSEnabled != o.TLSEnabled || l.KeystorePath != o.KeystorePath ||
		l.KeystorePassword != o.KeystorePassword {
		return false
	}
	if !stringSliceEqual(l.Blacklist, o.Blacklist) {
		return false
	}
	if !l.UpstreamProxy.Equal(o.UpstreamProxy) {
		return false
	}
	if len(l.Rules) != len(o.Rules) {
		return false
	}
	for i := range l.Rules {
		if !l.Rules[i].Equal(&o.Rules[i]) {
			return false
		}
	}
	return true
}

// AuthSource describes where the credentials sink loads its user/pass
// entries from; every populated source is loaded and the results merged.
type AuthSource struct {
	YAMLEntries  []CredentialEntry
	Directory    string
	EnvVar       string
}

type CredentialEntry struct {
	Username string
	Password string
}

type AccessLogConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	QueueSize  int
}

type AdminConfig struct {
	Enabled bool
	Address string
}

// Configuration is the full immutable snapshot handed to the orchestrator.
type Configuration struct {
	Listeners        []ListenerConfig
	Auth             AuthSource
	AccessLog        AccessLogConfig
	Admin            AdminConfig
	CertificatesPath string
	GlobalBlacklist  []string
}
