package socks5

import (
	"net"
	"testing"
	"time"
)

type fakeAuth struct {
	users map[string]string
}

func (f *fakeAuth) Authenticate(user, pass string) bool {
	want, ok := f.users[user]
	return ok && want == pass
}

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

func TestEngine_NoAuth_Connect(t *testing.T) {
	backend, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	_, backendPortStr, _ := net.SplitHostPort(backend.Addr().String())

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
	client.SetDeadline(time.Now().Add(3 * time.Second))

	client.Write([]byte{5, 1, 0})
	greet := make([]byte, 2)
	readFullTest(client, greet)
	if greet[1] != methodNoAuth {
		t.Fatalf("method selected = %d, want no-auth", greet[1])
	}

	port := 0
	for _, c := range backendPortStr {
		port = port*10 + int(c-'0')
	}
	req := []byte{5, 1, 0, atypIPv4, 127, 0, 0, 1, byte(port >> 8), byte(port)}
	client.Write(req)

	reply := make([]byte, 10)
	if _, err := readFullTest(client, reply); err != nil {
		t.Fatalf("reading connect reply: %v", err)
	}
	if reply[1] != replySuccess {
		t.Fatalf("reply code = %d, want success", reply[1])
	}

	client.Write([]byte("PING"))
	out := make([]byte, 4)
	readFullTest(client, out)
	if string(out) != "PONG" {
		t.Fatalf("relayed body = %q, want PONG", out)
	}
}

func TestEngine_UserPassAuth_Success(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()

	e := &Engine{AuthEnabled: true, Credentials: &fakeAuth{users: map[string]string{"u": "p"}}, Timeout: 3 * time.Second}
	go e.Handle(server, "127.0.0.1")
	client.SetDeadline(time.Now().Add(3 * time.Second))

	client.Write([]byte{5, 1, 2})
	greet := make([]byte, 2)
	readFullTest(client, greet)
	if greet[1] != methodUserPass {
		t.Fatalf("method selected = %d, want user/pass", greet[1])
	}

	client.Write([]byte{1, 1, 'u', 1, 'p'})
	authResp := make([]byte, 2)
	readFullTest(client, authResp)
	if authResp[1] != 0 {
		t.Fatalf("auth response = %v, want success", authResp)
	}
}

func TestEngine_UserPassAuth_Failure(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()

	e := &Engine{AuthEnabled: true, Credentials: &fakeAuth{users: map[string]string{"u": "p"}}, Timeout: 3 * time.Second}
	go e.Handle(server, "127.0.0.1")
	client.SetDeadline(time.Now().Add(3 * time.Second))

	client.Write([]byte{5, 1, 2})
	greet := make([]byte, 2)
	readFullTest(client, greet)

	client.Write([]byte{1, 1, 'u', 5, 'w', 'r', 'o', 'n', 'g'})
	authResp := make([]byte, 2)
	readFullTest(client, authResp)
	if authResp[1] != 1 {
		t.Fatalf("auth response = %v, want failure", authResp)
	}
}
