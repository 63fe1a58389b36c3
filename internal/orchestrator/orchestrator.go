// Package orchestrator owns the set of live Listeners and applies new
// Configuration snapshots by diffing against the running set, keyed by
// each listener's stable identity (name, falling back to port).
package orchestrator

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/vellum-proxy/vellum/internal/auth"
	"github.com/vellum-proxy/vellum/internal/balancer"
	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/events"
	"github.com/vellum-proxy/vellum/internal/health"
	"github.com/vellum-proxy/vellum/internal/httpengine"
	"github.com/vellum-proxy/vellum/internal/listener"
	"github.com/vellum-proxy/vellum/internal/logger"
	"github.com/vellum-proxy/vellum/internal/metrics"
	"github.com/vellum-proxy/vellum/internal/rule"
	"github.com/vellum-proxy/vellum/internal/socks4"
	"github.com/vellum-proxy/vellum/internal/socks5"
	"github.com/vellum-proxy/vellum/internal/tlsfactory"
)

const readyTimeout = 2 * time.Second

// AccessLogger is the shared access-log sink handed to every engine.
type AccessLogger interface {
	LogHTTP(remoteIP, user, method, uri string, status int, bytes int64)
	LogSocks(remoteIP, target, protocol string, replyCode int)
}

// live bundles one running listener with the collaborators that must be
// torn down alongside it.
type live struct {
	cfg      domain.ListenerConfig
	ln       *listener.Listener
	prober   *health.Prober
	runtimes []*rule.Runtime
}

// Orchestrator applies Configuration snapshots, starting, stopping, or
// leaving listeners alone per §4.2.
type Orchestrator struct {
	mu      sync.Mutex
	live    map[string]*live
	log     *logger.StyledLogger

	certificatesPath string
	metricsSink      *metrics.Sink
	credentials      *auth.Credentials
	accessLog        AccessLogger
	lbRegistry       *balancer.Registry
	events           *events.Bus
	runtimeReporter  *metrics.RuntimeReporter
}

const runtimeReportInterval = 5 * time.Minute

// New builds an idle Orchestrator; call ApplyConfiguration to start
// listeners from the initial snapshot. Health-check transitions are
// published on the returned Orchestrator's event bus (Events) as well as
// logged directly, so an admin surface can subscribe independently.
func New(log *logger.StyledLogger, certificatesPath string, metricsSink *metrics.Sink, credentials *auth.Credentials, accessLog AccessLogger) *Orchestrator {
	o := &Orchestrator{
		live:             make(map[string]*live),
		log:              log,
		certificatesPath: certificatesPath,
		metricsSink:      metricsSink,
		credentials:      credentials,
		accessLog:        accessLog,
		lbRegistry:       balancer.NewDefaultRegistry(),
		events:           events.NewBus(),
	}
	if log != nil {
		go o.logTransitions()
	}
	if metricsSink != nil || log != nil {
		var reportLog metrics.RuntimeLogger
		if log != nil {
			reportLog = log
		}
		o.runtimeReporter = metrics.NewRuntimeReporter(metricsSink, reportLog, runtimeReportInterval)
		o.runtimeReporter.Start()
	}
	return o
}

// Events returns the shared event bus health transitions are published on.
func (o *Orchestrator) Events() *events.Bus { return o.events }

func (o *Orchestrator) logTransitions() {
	ch, cleanup := o.events.Subscribe(context.Background())
	defer cleanup()
	for ev := range ch {
		status := logger.TargetHealthy
		if ev.Kind == events.TargetUnhealthy {
			status = logger.TargetUnhealthy
		}
		o.log.InfoTargetStatus("Health check", ev.Target, status, "listener", ev.Listener)
	}
}

// ApplyConfiguration diffs newCfg against the running set, serialized
// under a mutex so concurrent reload signals never interleave.
func (o *Orchestrator) ApplyConfiguration(newCfg *domain.Configuration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wanted := make(map[string]*domain.ListenerConfig, len(newCfg.Listeners))
	for i := range newCfg.Listeners {
		l := &newCfg.Listeners[i]
		wanted[l.Key()] = l
	}

	for key, cur := range o.live {
		if _, ok := wanted[key]; !ok {
			o.stopListener(key, cur)
		}
	}

	for key, want := range wanted {
		cur, exists := o.live[key]
		switch {
		case !exists:
			o.startListener(key, want, newCfg.GlobalBlacklist)
		case !cur.cfg.Equal(want):
			o.stopListener(key, cur)
			o.startListener(key, want, newCfg.GlobalBlacklist)
		default:
			// unchanged; leave running
		}
	}
}

func (o *Orchestrator) stopListener(key string, l *live) {
	if o.log != nil {
		o.log.InfoWithListener("Stopping listener", key)
	}
	if l.prober != nil {
		l.prober.Stop()
	}
	l.ln.Stop()
	delete(o.live, key)
}

func (o *Orchestrator) startListener(key string, cfg *domain.ListenerConfig, globalBlacklist []string) {
	matcher := rule.NewMatcher(cfg.Rules)
	runtimes := make([]*rule.Runtime, len(cfg.Rules))
	for i := range cfg.Rules {
		runtimes[i] = rule.NewRuntime(&cfg.Rules[i], o.lbRegistry)
	}

	tlsCfg, err := o.tlsConfigFor(cfg)
	if err != nil {
		if o.log != nil {
			o.log.ErrorWithListener("Failed to build TLS config for listener", key, "error", err)
		}
		return
	}

	var metricsView *metrics.ListenerView
	var listenerMetrics listener.Metrics
	if o.metricsSink != nil {
		metricsView = o.metricsSink.ForListener(string(cfg.Type), key)
		listenerMetrics = metricsView
	}

	handler := o.buildHandler(cfg, matcher, runtimes, metricsView)

	ln := listener.New(key, cfg.BindAddress, cfg.Port, tlsCfg, cfg.MaxConnectionsOrDefault(), cfg.TimeoutMs, cfg.Blacklist, globalBlacklist, handler, listenerMetrics)
	ln.Start()

	select {
	case <-ln.ReadyLatch():
	case <-time.After(readyTimeout):
		if o.log != nil {
			o.log.ErrorWithListener("Listener did not become ready in time", key)
		}
		ln.Stop()
		return
	}

	if err := ln.Err(); err != nil {
		if o.log != nil {
			o.log.ErrorWithListener("Listener failed to bind", key, "error", err)
		}
		return
	}

	prober := health.NewProber()
	prober.Events = o.events
	prober.Listener = key
	targets := make([]health.Target, len(cfg.Rules))
	for i := range cfg.Rules {
		targets[i] = health.Target{Rule: &cfg.Rules[i], Runtime: runtimes[i]}
	}
	prober.Start(targets)

	o.live[key] = &live{cfg: *cfg, ln: ln, prober: prober, runtimes: runtimes}
	if o.log != nil {
		o.log.InfoWithListener("Listener started", key, "port", cfg.Port, "type", cfg.Type)
	}
}

func (o *Orchestrator) tlsConfigFor(cfg *domain.ListenerConfig) (*tls.Config, error) {
	if !cfg.TLSEnabled {
		return nil, nil
	}
	t, err := tlsfactory.Build(cfg.KeystorePath, cfg.KeystorePassword, o.certificatesPath)
	if err != nil {
		return nil, &domain.ConfigError{Listener: cfg.Key(), Reason: err.Error()}
	}
	return t, nil
}

func (o *Orchestrator) buildHandler(cfg *domain.ListenerConfig, matcher *rule.Matcher, runtimes []*rule.Runtime, metricsView *metrics.ListenerView) listener.Handler {
	var authFilter *auth.AuthFilter
	if cfg.AuthEnabled {
		authFilter = &auth.AuthFilter{Enabled: true, Credentials: o.credentials}
	}

	// o.credentials is a *auth.Credentials; assigning it straight into an
	// interface field even when nil would wrap a non-nil interface around
	// a nil pointer, so the engines' "Credentials == nil" checks only see
	// a real nil when we skip the assignment entirely.
	var socks4Creds socks4.CredentialSource
	var socks5Creds socks5.Authenticator
	if o.credentials != nil {
		socks4Creds = o.credentials
		socks5Creds = o.credentials
	}

	switch cfg.Type {
	case domain.ListenerSOCKS4:
		return &socks4.Engine{
			AuthEnabled:   cfg.AuthEnabled,
			Credentials:   socks4Creds,
			UpstreamProxy: cfg.UpstreamProxy,
			Timeout:       time.Duration(cfg.TimeoutOrDefault(false)) * time.Millisecond,
			AccessLog:     o.accessLog,
		}
	case domain.ListenerSOCKS5:
		return &socks5.Engine{
			AuthEnabled:   cfg.AuthEnabled,
			Credentials:   socks5Creds,
			UpstreamProxy: cfg.UpstreamProxy,
			Timeout:       time.Duration(cfg.TimeoutOrDefault(false)) * time.Millisecond,
			AccessLog:     o.accessLog,
		}
	default:
		var engineMetrics httpengine.Metrics
		if metricsView != nil {
			engineMetrics = metricsView
		}
		return httpengine.NewEngine(cfg, matcher, runtimes, authFilter, o.accessLog, engineMetrics)
	}
}

// StopAll stops every running listener, used at process shutdown.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, l := range o.live {
		o.stopListener(key, l)
	}
	if o.runtimeReporter != nil {
		o.runtimeReporter.Stop()
	}
	o.events.Shutdown()
}
