package upstream

import (
	"net"
	"testing"
	"time"

	"github.com/vellum-proxy/vellum/internal/domain"
)

func TestConnect_Direct(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte("hello"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn, err := Connect("127.0.0.1", addr.Port, nil, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	buf := make([]byte, 5)
	if _, err := readFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Errorf("got %q, want hello", buf)
	}
}

func TestConnect_HTTPUpstreamRejectsNon200(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\n\r\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	up := &domain.UpstreamProxyConfig{Host: "127.0.0.1", Port: addr.Port, Type: domain.UpstreamHTTP}

	if _, err := Connect("example.com", 443, up, 2*time.Second); err == nil {
		t.Fatal("expected non-200 CONNECT response to fail")
	}
}

func TestConnect_SOCKS5UpstreamWithCredentialsRejected(t *testing.T) {
	up := &domain.UpstreamProxyConfig{Host: "127.0.0.1", Port: 1, Type: domain.UpstreamSOCKS5, Username: "u", Password: "p"}
	if _, err := Connect("example.com", 443, up, time.Second); err == nil {
		t.Fatal("expected SOCKS5 upstream with credentials to fail")
	}
}
