// Package relay implements the bidirectional byte-copy loop shared by
// CONNECT tunnels, WebSocket tunnels, and SOCKS CONNECT sessions.
package relay

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/vellum-proxy/vellum/pkg/pool"
)

const bufferSize = 8 * 1024

var bufferPool = pool.NewLitePool(func() []byte {
	return make([]byte, bufferSize)
})

// Counters receives byte counts as they cross the relay, one call per
// direction per Relay invocation.
type Counters struct {
	Sent     *int64
	Received *int64
}

// Relay copies bytes in both directions between client and upstream until
// both sides have seen EOF or an error, implementing half-close: when one
// direction ends, that direction's writer is closed while the other
// direction continues until it, too, ends.
func Relay(client, upstream net.Conn, c Counters) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n := copyBuf(upstream, client)
		if c.Sent != nil {
			atomic.AddInt64(c.Sent, n)
		}
		closeWrite(upstream)
	}()

	go func() {
		defer wg.Done()
		n := copyBuf(client, upstream)
		if c.Received != nil {
			atomic.AddInt64(c.Received, n)
		}
		closeWrite(client)
	}()

	wg.Wait()
}

func copyBuf(dst io.Writer, src io.Reader) int64 {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	n, _ := io.CopyBuffer(dst, src, buf)
	return n
}

// closeWrite half-closes the connection if it supports it, otherwise
// closes it outright.
func closeWrite(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
		return
	}
	_ = conn.Close()
}
