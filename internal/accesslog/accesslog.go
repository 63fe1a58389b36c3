// Package accesslog implements the access-log sink collaborator: an async,
// bounded-queue writer with lumberjack rotation, matching the teacher's
// pairing of a worker-pool drain loop with log/slog for structured lines.
package accesslog

import (
	"io"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type httpEntry struct {
	remoteIP string
	user     string
	method   string
	uri      string
	status   int
	bytes    int64
}

type socksEntry struct {
	remoteIP  string
	target    string
	protocol  string
	replyCode int
}

// Sink is the asynchronous access-log writer. Entries are queued on a
// bounded channel; when full, the entry is dropped and a debug-level
// warning is logged once for the lifetime of the sink.
type Sink struct {
	logger *slog.Logger
	queue  chan func()

	overflowOnce sync.Once
	wg           sync.WaitGroup
	closeOnce    sync.Once
	done         chan struct{}
}

// Config mirrors domain.AccessLogConfig without importing it, to keep this
// collaborator package independent of the core's config tree.
type Config struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	QueueSize  int
}

// NewSink builds a Sink. If cfg.Enabled is false, all log calls are no-ops.
func NewSink(cfg Config) *Sink {
	if !cfg.Enabled {
		return &Sink{}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	var handler slog.Handler
	if cfg.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		handler = slog.NewJSONHandler(rotator, nil)
	} else {
		handler = slog.NewJSONHandler(io.Discard, nil)
	}

	s := &Sink{
		logger: slog.New(handler),
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for {
		select {
		case fn, ok := <-s.queue:
			if !ok {
				return
			}
			fn()
		case <-s.done:
			// drain remaining queued entries before exiting
			for {
				select {
				case fn := <-s.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) enqueue(fn func()) {
	if s.queue == nil {
		return
	}
	select {
	case s.queue <- fn:
	default:
		s.overflowOnce.Do(func() {
			s.logger.Debug("access log queue full, dropping entries")
		})
	}
}

// LogHTTP records one forwarded HTTP request.
func (s *Sink) LogHTTP(remoteIP, user, method, uri string, status int, bytes int64) {
	e := httpEntry{remoteIP, user, method, uri, status, bytes}
	s.enqueue(func() {
		s.logger.Info("http",
			"remote_ip", e.remoteIP,
			"user", e.user,
			"method", e.method,
			"uri", e.uri,
			"status", e.status,
			"bytes", e.bytes,
		)
	})
}

// LogSocks records one SOCKS CONNECT attempt.
func (s *Sink) LogSocks(remoteIP, target, protocol string, replyCode int) {
	e := socksEntry{remoteIP, target, protocol, replyCode}
	s.enqueue(func() {
		s.logger.Info("socks",
			"remote_ip", e.remoteIP,
			"target", e.target,
			"protocol", e.protocol,
			"reply_code", e.replyCode,
		)
	})
}

// Close stops the drain loop after flushing whatever is already queued.
func (s *Sink) Close() {
	if s.done == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
