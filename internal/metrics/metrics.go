// Package metrics implements the metrics sink collaborator with
// Prometheus counters and gauges, named per spec §6. There is no scrape
// HTTP endpoint here — exposing /metrics is the out-of-scope admin
// surface; callers register these collectors with whatever registry the
// process entrypoint wires up.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink bundles every counter/gauge the proxy reports, tagged by listener
// type and name as spec §6 requires.
type Sink struct {
	ConnectionsTotal  *prometheus.CounterVec
	ConnectionsErrors *prometheus.CounterVec
	ConnectionsActive *prometheus.GaugeVec

	HTTPRequestsTotal   *prometheus.CounterVec
	Socks4RequestsTotal *prometheus.CounterVec
	Socks5RequestsTotal *prometheus.CounterVec

	BytesSent     *prometheus.CounterVec
	BytesReceived *prometheus.CounterVec

	RuntimeGoroutines prometheus.Gauge
	RuntimeHeapBytes  prometheus.Gauge
}

// NewSink builds and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewSink(reg prometheus.Registerer) *Sink {
	labels := []string{"type", "name"}

	s := &Sink{
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_connections_total",
			Help: "Total accepted connections per listener.",
		}, labels),
		ConnectionsErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_connections_errors",
			Help: "Total accept errors and dropped connections per listener.",
		}, labels),
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_connections_active",
			Help: "Currently active connections per listener.",
		}, labels),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_http_requests_total",
			Help: "Total HTTP requests handled per listener.",
		}, labels),
		Socks4RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_socks4_requests_total",
			Help: "Total SOCKS4 requests handled per listener.",
		}, labels),
		Socks5RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_socks5_requests_total",
			Help: "Total SOCKS5 requests handled per listener.",
		}, labels),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_traffic_bytes_sent",
			Help: "Total bytes sent to clients per listener.",
		}, labels),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_traffic_bytes_received",
			Help: "Total bytes received from clients per listener.",
		}, labels),
		RuntimeGoroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_runtime_goroutines",
			Help: "Current number of goroutines, process-wide.",
		}),
		RuntimeHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_runtime_heap_inuse_bytes",
			Help: "Heap memory in use, process-wide.",
		}),
	}

	for _, c := range []prometheus.Collector{
		s.ConnectionsTotal, s.ConnectionsErrors, s.ConnectionsActive,
		s.HTTPRequestsTotal, s.Socks4RequestsTotal, s.Socks5RequestsTotal,
		s.BytesSent, s.BytesReceived, s.RuntimeGoroutines, s.RuntimeHeapBytes,
	} {
		reg.MustRegister(c)
	}

	return s
}

// Unregister removes every collector from reg.
func (s *Sink) Unregister(reg prometheus.Registerer) {
	reg.Unregister(s.ConnectionsTotal)
	reg.Unregister(s.ConnectionsErrors)
	reg.Unregister(s.ConnectionsActive)
	reg.Unregister(s.HTTPRequestsTotal)
	reg.Unregister(s.Socks4RequestsTotal)
	reg.Unregister(s.Socks5RequestsTotal)
	reg.Unregister(s.BytesSent)
	reg.Unregister(s.BytesReceived)
	reg.Unregister(s.RuntimeGoroutines)
	reg.Unregister(s.RuntimeHeapBytes)
}

// ListenerView binds Sink to one listener's {type, name} label pair, so
// callers in internal/listener and the protocol engines never handle raw
// label vectors.
type ListenerView struct {
	sink *Sink
	typ  string
	name string
}

// ForListener returns the bound view for one listener.
func (s *Sink) ForListener(typ, name string) *ListenerView {
	return &ListenerView{sink: s, typ: typ, name: name}
}

func (v *ListenerView) IncConnections() {
	v.sink.ConnectionsTotal.WithLabelValues(v.typ, v.name).Inc()
}

func (v *ListenerView) IncConnectionErrors() {
	v.sink.ConnectionsErrors.WithLabelValues(v.typ, v.name).Inc()
}

func (v *ListenerView) SetActiveConnections(n int) {
	v.sink.ConnectionsActive.WithLabelValues(v.typ, v.name).Set(float64(n))
}

func (v *ListenerView) IncRequests() {
	switch v.typ {
	case "SOCKS4":
		v.sink.Socks4RequestsTotal.WithLabelValues(v.typ, v.name).Inc()
	case "SOCKS5":
		v.sink.Socks5RequestsTotal.WithLabelValues(v.typ, v.name).Inc()
	default:
		v.sink.HTTPRequestsTotal.WithLabelValues(v.typ, v.name).Inc()
	}
}

func (v *ListenerView) IncBytesSent(n int64) {
	v.sink.BytesSent.WithLabelValues(v.typ, v.name).Add(float64(n))
}

func (v *ListenerView) IncBytesReceived(n int64) {
	v.sink.BytesReceived.WithLabelValues(v.typ, v.name).Add(float64(n))
}
