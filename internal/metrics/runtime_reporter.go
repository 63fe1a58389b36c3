package metrics

import (
	"context"
	"time"

	"github.com/vellum-proxy/vellum/pkg/format"
	"github.com/vellum-proxy/vellum/pkg/nerdstats"
)

// RuntimeLogger is the subset of *logger.StyledLogger the reporter needs,
// kept as an interface so this package doesn't depend on internal/logger.
type RuntimeLogger interface {
	Info(msg string, args ...any)
}

// RuntimeReporter periodically snapshots Go runtime stats via pkg/nerdstats,
// publishes the goroutine/heap numbers as gauges on a Sink, and logs a
// human-readable summary formatted with pkg/format.
type RuntimeReporter struct {
	sink     *Sink
	log      RuntimeLogger
	start    time.Time
	interval time.Duration
	cancel   context.CancelFunc
}

// NewRuntimeReporter builds a reporter. sink and log may each be nil to
// skip that half of the reporting (metrics-only, log-only, or neither).
func NewRuntimeReporter(sink *Sink, log RuntimeLogger, interval time.Duration) *RuntimeReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RuntimeReporter{sink: sink, log: log, start: time.Now(), interval: interval}
}

// Start begins the reporting loop in a background goroutine.
func (r *RuntimeReporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(ctx)
}

// Stop ends the reporting loop. Safe to call on an unstarted reporter.
func (r *RuntimeReporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RuntimeReporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *RuntimeReporter) report() {
	stats := nerdstats.Snapshot(r.start)

	if r.sink != nil {
		r.sink.RuntimeGoroutines.Set(float64(stats.NumGoroutines))
		r.sink.RuntimeHeapBytes.Set(float64(stats.HeapInuse))
	}

	if r.log != nil {
		r.log.Info("Runtime stats",
			"goroutines", stats.NumGoroutines,
			"goroutine_health", stats.GetGoroutineHealthStatus(),
			"heap_inuse", format.Bytes(stats.HeapInuse),
			"memory_pressure", stats.GetMemoryPressure(),
			"gc_pause_avg", nerdstats.CalculateAverageGCPause(stats),
			"uptime", format.Duration(stats.Uptime),
		)
	}
}
