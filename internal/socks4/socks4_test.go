package socks4

import (
	"net"
	"testing"
	"time"
)

type fakeCreds struct {
	known map[string]bool
}

func (f *fakeCreds) UserExists(name string) bool { return f.known[name] }

func dialPair(t *testing.T) (client, server net.Conn) {
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

func TestEngine_Connect4a_Success(t *testing.T) {
	backend, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	backendPort := backend.Addr().(*net.TCPAddr).Port

	go func() {
		c, err := backend.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4)
		c.Read(buf)
		c.Write([]byte("PONG"))
	}()

	client, server := dialPair(t)
	defer client.Close()

	e := &Engine{Timeout: 3 * time.Second}
	go e.Handle(server, "127.0.0.1")

	req := []byte{4, 1, byte(backendPort >> 8), byte(backendPort), 0, 0, 0, 1, 0,
		'1', '2', '7', '.', '0', '.', '0', '.', '1', 0}
	client.Write(req)

	reply := make([]byte, 8)
	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := readFullTest(client, reply); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply[1] != replyGranted {
		t.Fatalf("reply code = %d, want %d", reply[1], replyGranted)
	}

	client.Write([]byte("PING"))
	out := make([]byte, 4)
	if _, err := readFullTest(client, out); err != nil {
		t.Fatalf("reading relayed response: %v", err)
	}
	if string(out) != "PONG" {
		t.Fatalf("relayed body = %q, want PONG", out)
	}
}

func TestEngine_AuthRejectsUnknownUser(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()

	e := &Engine{AuthEnabled: true, Credentials: &fakeCreds{known: map[string]bool{"alice": true}}, Timeout: 3 * time.Second}
	go e.Handle(server, "127.0.0.1")

	req := []byte{4, 1, 0, 80, 93, 184, 216, 34, 'b', 'o', 'b', 0}
	client.Write(req)

	reply := make([]byte, 8)
	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := readFullTest(client, reply); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply[1] != replyRejected {
		t.Fatalf("reply code = %d, want %d", reply[1], replyRejected)
	}
}

func readFullTest(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}
