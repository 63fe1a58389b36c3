package httpengine

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vellum-proxy/vellum/internal/balancer"
	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/rule"
)

func newTestEngine(t *testing.T, l *domain.ListenerConfig) *Engine {
	t.Helper()
	matcher := rule.NewMatcher(l.Rules)
	runtimes := make([]*rule.Runtime, len(l.Rules))
	reg := balancer.NewDefaultRegistry()
	for i := range l.Rules {
		runtimes[i] = rule.NewRuntime(&l.Rules[i], reg)
	}
	return NewEngine(l, matcher, runtimes, nil, nil, nil)
}

func dialPair(t *testing.T) (client net.Conn, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srvCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		srvCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-srvCh
	return client, server
}

func TestEngine_ForwardProxy_NoRule(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer backend.Close()

	l := &domain.ListenerConfig{Name: "test", Type: domain.ListenerHTTP, TimeoutMs: -1}
	e := newTestEngine(t, l)

	client, server := dialPair(t)
	defer client.Close()

	go e.Handle(server, "127.0.0.1")

	req := "GET " + backend.URL + "/path HTTP/1.1\r\nHost: " + strings.TrimPrefix(backend.URL, "http://") + "\r\nConnection: close\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Echo") != "yes" {
		t.Fatalf("missing echoed header")
	}
}

func TestEngine_RuleMatch_ReturnsNotFoundWithoutMatch(t *testing.T) {
	l := &domain.ListenerConfig{
		Name: "test", Type: domain.ListenerHTTP, TimeoutMs: -1,
		Rules: []domain.Rule{{Host: "api.internal", Target: "http://127.0.0.1:1"}},
	}
	e := newTestEngine(t, l)

	client, server := dialPair(t)
	defer client.Close()
	go e.Handle(server, "127.0.0.1")

	req := "GET http://other.example/ HTTP/1.1\r\nHost: other.example\r\nConnection: close\r\n\r\n"
	client.Write([]byte(req))

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEngine_ConnectTunnel(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()
	backendAddr := strings.TrimPrefix(backend.URL, "http://")

	l := &domain.ListenerConfig{Name: "test", Type: domain.ListenerHTTP, TimeoutMs: -1}
	e := newTestEngine(t, l)

	client, server := dialPair(t)
	defer client.Close()
	go e.Handle(server, "127.0.0.1")

	client.Write([]byte("CONNECT " + backendAddr + " HTTP/1.1\r\nHost: " + backendAddr + "\r\n\r\n"))

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	br := bufio.NewReader(client)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading CONNECT response: %v", err)
	}
	if !strings.Contains(line, "200") {
		t.Fatalf("CONNECT response = %q, want 200", line)
	}
}
