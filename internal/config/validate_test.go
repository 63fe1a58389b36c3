package config

import (
	"testing"

	"github.com/vellum-proxy/vellum/internal/domain"
)

func TestValidate_DuplicateListenerKey(t *testing.T) {
	cfg := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{Name: "api", Port: 8080},
			{Name: "api", Port: 8081},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected duplicate listener key to be rejected")
	}
}

func TestValidate_HealthCheckPathMustBeAbsolute(t *testing.T) {
	cfg := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{Name: "api", Port: 8080, Rules: []domain.Rule{{HealthCheckPath: "health"}}},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected relative healthCheckPath to be rejected")
	}
}

func TestValidate_HealthCheckPathRejectsDotDot(t *testing.T) {
	cfg := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{Name: "api", Port: 8080, Rules: []domain.Rule{{HealthCheckPath: "/../etc/passwd"}}},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected .. in healthCheckPath to be rejected")
	}
}

func TestValidate_SOCKS5UpstreamWithCredentialsRejected(t *testing.T) {
	cfg := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{
				Name: "api", Port: 8080,
				UpstreamProxy: &domain.UpstreamProxyConfig{Type: domain.UpstreamSOCKS5, Username: "u", Password: "p"},
			},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected SOCKS5 upstream proxy with credentials to be rejected")
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{Name: "api", Port: 8080, Rules: []domain.Rule{{HealthCheckPath: "/health"}}},
		},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
