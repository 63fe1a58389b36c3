// Package config loads the proxy's Configuration snapshot from a YAML file
// (with environment overrides) and watches it for changes, following the
// same viper+fsnotify pattern the teacher uses for its own config loader.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/vellum-proxy/vellum/internal/domain"
)

const (
	envPrefix             = "VELLUM"
	defaultFileWriteDelay = 150 * time.Millisecond
	reloadDebounce        = 500 * time.Millisecond
)

// fileYAML mirrors the on-disk shape; it is unmarshalled by viper and then
// converted into the immutable domain.Configuration tree.
type fileYAML struct {
	Listeners []listenerYAML `mapstructure:"listeners"`
	Auth      struct {
		Entries   []domain.CredentialEntry `mapstructure:"entries"`
		Directory string                   `mapstructure:"directory"`
		EnvVar    string                   `mapstructure:"envVar"`
	} `mapstructure:"auth"`
	AccessLog struct {
		Enabled    bool   `mapstructure:"enabled"`
		Path       string `mapstructure:"path"`
		MaxSizeMB  int    `mapstructure:"maxSizeMb"`
		MaxBackups int    `mapstructure:"maxBackups"`
		MaxAgeDays int    `mapstructure:"maxAgeDays"`
		QueueSize  int    `mapstructure:"queueSize"`
	} `mapstructure:"accessLog"`
	Admin struct {
		Enabled bool   `mapstructure:"enabled"`
		Address string `mapstructure:"address"`
	} `mapstructure:"admin"`
	CertificatesPath string   `mapstructure:"certificatesPath"`
	GlobalBlacklist  []string `mapstructure:"globalBlacklist"`
}

type listenerYAML struct {
	Name           string       `mapstructure:"name"`
	Port           int          `mapstructure:"port"`
	Type           string       `mapstructure:"type"`
	Rules          []ruleYAML   `mapstructure:"rules"`
	AuthEnabled    bool         `mapstructure:"authEnabled"`
	KeepAlive      bool         `mapstructure:"keepAlive"`
	TimeoutMs      int          `mapstructure:"timeoutMs"`
	MaxRedirects   int          `mapstructure:"maxRedirects"`
	MaxConnections int          `mapstructure:"maxConnections"`
	BindAddress    string       `mapstructure:"bindAddress"`
	TLSEnabled     bool         `mapstructure:"tlsEnabled"`
	KeystorePath   string       `mapstructure:"keystorePath"`
	KeystorePass   string       `mapstructure:"keystorePassword"`
	Blacklist      []string     `mapstructure:"blacklist"`
	UpstreamProxy  *upstreamYAML `mapstructure:"upstreamProxy"`
}

type ruleYAML struct {
	Host                  string            `mapstructure:"host"`
	Path                  string            `mapstructure:"path"`
	Target                string            `mapstructure:"target"`
	Targets               []string          `mapstructure:"targets"`
	Headers               map[string]string `mapstructure:"headers"`
	UpstreamProxy         *upstreamYAML     `mapstructure:"upstreamProxy"`
	Reverse               bool              `mapstructure:"reverse"`
	HealthCheckPath       string            `mapstructure:"healthCheckPath"`
	HealthCheckIntervalMs int               `mapstructure:"healthCheckIntervalMs"`
	HealthCheckTimeoutMs  int               `mapstructure:"healthCheckTimeoutMs"`
	RateLimit             float64           `mapstructure:"rateLimit"`
	Burst                 int               `mapstructure:"burst"`
	LoadBalancing         string            `mapstructure:"loadBalancing"`
	CustomLoadBalancer    string            `mapstructure:"customLoadBalancer"`
}

type upstreamYAML struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Type     string `mapstructure:"type"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// Load reads the configuration file (and VELLUM_* environment overrides),
// converts it into a domain.Configuration, validates it, and — if
// onChange is non-nil — watches the file for subsequent reloads.
func Load(path string, onChange func(*domain.Configuration)) (*domain.Configuration, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if envPath := os.Getenv(envPrefix + "_CONFIG_FILE"); envPath != "" {
			v.SetConfigFile(envPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", envPath, err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if onChange != nil {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < reloadDebounce {
				return
			}
			lastReload = now

			time.Sleep(defaultFileWriteDelay)

			reloaded, err := decode(v)
			if err != nil {
				return
			}
			if err := Validate(reloaded); err != nil {
				return
			}
			onChange(reloaded)
		})
	}

	return cfg, nil
}

func decode(v *viper.Viper) (*domain.Configuration, error) {
	var raw fileYAML
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return convert(&raw), nil
}

func convert(raw *fileYAML) *domain.Configuration {
	cfg := &domain.Configuration{
		CertificatesPath: raw.CertificatesPath,
		GlobalBlacklist:  raw.GlobalBlacklist,
		AccessLog: domain.AccessLogConfig{
			Enabled:    raw.AccessLog.Enabled,
			Path:       raw.AccessLog.Path,
			MaxSizeMB:  raw.AccessLog.MaxSizeMB,
			MaxBackups: raw.AccessLog.MaxBackups,
			MaxAgeDays: raw.AccessLog.MaxAgeDays,
			QueueSize:  raw.AccessLog.QueueSize,
		},
		Admin: domain.AdminConfig{
			Enabled: raw.Admin.Enabled,
			Address: raw.Admin.Address,
		},
		Auth: domain.AuthSource{
			YAMLEntries: raw.Auth.Entries,
			Directory:   raw.Auth.Directory,
			EnvVar:      raw.Auth.EnvVar,
		},
	}

	for _, l := range raw.Listeners {
		cfg.Listeners = append(cfg.Listeners, convertListener(l))
	}
	return cfg
}

func convertListener(l listenerYAML) domain.ListenerConfig {
	out := domain.ListenerConfig{
		Name:             l.Name,
		Port:             l.Port,
		Type:             domain.ListenerType(strings.ToUpper(l.Type)),
		AuthEnabled:      l.AuthEnabled,
		KeepAlive:        l.KeepAlive,
		TimeoutMs:        l.TimeoutMs,
		MaxRedirects:     l.MaxRedirects,
		MaxConnections:   l.MaxConnections,
		BindAddress:      l.BindAddress,
		TLSEnabled:       l.TLSEnabled,
		KeystorePath:     l.KeystorePath,
		KeystorePassword: l.KeystorePass,
		Blacklist:        l.Blacklist,
		UpstreamProxy:    convertUpstream(l.UpstreamProxy),
	}
	for _, r := range l.Rules {
		out.Rules = append(out.Rules, convertRule(r))
	}
	return out
}

func convertRule(r ruleYAML) domain.Rule {
	return domain.Rule{
		Host:                  strings.ToLower(r.Host),
		Path:                  r.Path,
		Target:                r.Target,
		Targets:               r.Targets,
		Headers:               r.Headers,
		UpstreamProxy:         convertUpstream(r.UpstreamProxy),
		Reverse:               r.Reverse,
		HealthCheckPath:       r.HealthCheckPath,
		HealthCheckIntervalMs: r.HealthCheckIntervalMs,
		HealthCheckTimeoutMs:  r.HealthCheckTimeoutMs,
		RateLimit:             r.RateLimit,
		Burst:                 r.Burst,
		LoadBalancing:         domain.LoadBalancing(strings.ToUpper(r.LoadBalancing)),
		CustomLoadBalancer:    r.CustomLoadBalancer,
	}
}

func convertUpstream(u *upstreamYAML) *domain.UpstreamProxyConfig {
	if u == nil {
		return nil
	}
	return &domain.UpstreamProxyConfig{
		Host:     u.Host,
		Port:     u.Port,
		Type:     domain.UpstreamProxyType(strings.ToUpper(u.Type)),
		Username: u.Username,
		Password: u.Password,
	}
}
