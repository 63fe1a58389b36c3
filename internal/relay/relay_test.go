package relay

import (
	"net"
	"testing"
	"time"
)

func TestRelay_EchoesBothDirections(t *testing.T) {
	c1, c2 := net.Pipe()
	u1, u2 := net.Pipe()

	// wire c2 <-> u1 together as the "proxy side" that Relay bridges
	go Relay(c2, u1, Counters{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4)
		n, err := u2.Read(buf)
		if err != nil || n != 4 {
			t.Errorf("upstream read: n=%d err=%v", n, err)
			return
		}
		if string(buf) != "PING" {
			t.Errorf("got %q, want PING", buf)
		}
		u2.Write([]byte("PONG"))
	}()

	if _, err := c1.Write([]byte("PING")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4)
	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := c1.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("client read: n=%d err=%v", n, err)
	}
	if string(buf) != "PONG" {
		t.Errorf("got %q, want PONG", buf)
	}

	<-done
	c1.Close()
	u2.Close()
}
