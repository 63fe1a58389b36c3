package config

import (
	"strings"

	"github.com/vellum-proxy/vellum/internal/domain"
)

// Validate checks the cross-cutting invariants that must hold before any
// listener starts: unique listener keys, well-formed health check paths,
// and SOCKS5 upstream proxies without credentials.
func Validate(cfg *domain.Configuration) error {
	seen := make(map[string]struct{}, len(cfg.Listeners))
	for i := range cfg.Listeners {
		l := &cfg.Listeners[i]
		key := l.Key()
		if _, dup := seen[key]; dup {
			return &domain.ConfigError{Listener: key, Reason: "duplicate listener name/port"}
		}
		seen[key] = struct{}{}

		if err := validateUpstream(l.Key(), l.UpstreamProxy); err != nil {
			return err
		}

		for j := range l.Rules {
			r := &l.Rules[j]
			if err := validateHealthCheckPath(key, r.HealthCheckPath); err != nil {
				return err
			}
			if err := validateUpstream(key, r.UpstreamProxy); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateHealthCheckPath(listener, path string) error {
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return &domain.ConfigError{Listener: listener, Reason: "healthCheckPath must begin with /"}
	}
	if strings.Contains(path, "..") {
		return &domain.ConfigError{Listener: listener, Reason: "healthCheckPath must not contain .."}
	}
	return nil
}

func validateUpstream(listener string, u *domain.UpstreamProxyConfig) error {
	if u == nil {
		return nil
	}
	if u.Type == domain.UpstreamSOCKS5 && (u.Username != "" || u.Password != "") {
		return &domain.ConfigError{Listener: listener, Reason: "SOCKS5 upstream proxies with credentials are not supported"}
	}
	return nil
}
