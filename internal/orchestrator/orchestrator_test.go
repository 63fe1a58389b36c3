package orchestrator

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/vellum-proxy/vellum/internal/domain"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitForOpen(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("listener at %s never became reachable", addr)
}

func expectClosed(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return
		}
		conn.Close()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("listener at %s still accepting after stop", addr)
}

func TestOrchestrator_StartsAndStopsListenersOnDiff(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	portA := freePort(t)
	portB := freePort(t)

	o := New(nil, "", nil, nil, nil)

	cfg1 := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{Name: "a", Port: portA, Type: domain.ListenerHTTP, BindAddress: "127.0.0.1", TimeoutMs: -1},
		},
	}
	o.ApplyConfiguration(cfg1)
	defer o.StopAll()

	addrA := net.JoinHostPort("127.0.0.1", strconv.Itoa(portA))
	waitForOpen(t, addrA)

	cfg2 := &domain.Configuration{
		Listeners: []domain.ListenerConfig{
			{Name: "b", Port: portB, Type: domain.ListenerHTTP, BindAddress: "127.0.0.1", TimeoutMs: -1},
		},
	}
	o.ApplyConfiguration(cfg2)

	expectClosed(t, addrA)
	addrB := net.JoinHostPort("127.0.0.1", strconv.Itoa(portB))
	waitForOpen(t, addrB)
}
