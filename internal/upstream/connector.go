// Package upstream implements UpstreamConnector: opening a TCP connection
// to a target host:port either directly, or chained through an
// HTTP-CONNECT or SOCKS5 (no-auth) upstream proxy.
package upstream

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vellum-proxy/vellum/internal/domain"
)

// Connect opens a TCP connection to host:port, either directly or via the
// given upstream proxy. timeout <= 0 sets no handshake deadline; the TCP
// dial itself is then bounded by a 30s default.
func Connect(host string, port int, up *domain.UpstreamProxyConfig, timeout time.Duration) (net.Conn, error) {
	target := net.JoinHostPort(host, strconv.Itoa(port))

	if up == nil {
		conn, err := net.DialTimeout("tcp", target, dialTimeout(timeout))
		if err != nil {
			return nil, &domain.UpstreamError{Target: target, Err: err}
		}
		return conn, nil
	}

	proxyAddr := net.JoinHostPort(up.Host, strconv.Itoa(up.Port))
	conn, err := net.DialTimeout("tcp", proxyAddr, dialTimeout(timeout))
	if err != nil {
		return nil, &domain.UpstreamError{Target: proxyAddr, Err: err}
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	switch up.Type {
	case domain.UpstreamHTTP:
		err = connectViaHTTP(conn, host, port, up)
	case domain.UpstreamSOCKS5:
		if up.Username != "" || up.Password != "" {
			err = fmt.Errorf("upstream SOCKS5 authentication is not supported")
		} else {
			err = connectViaSOCKS5(conn, host, port)
		}
	default:
		err = fmt.Errorf("unknown upstream proxy type %q", up.Type)
	}

	if err != nil {
		_ = conn.Close()
		return nil, &domain.UpstreamError{Target: target, Err: err}
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func dialTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

func connectViaHTTP(conn net.Conn, host string, port int, up *domain.UpstreamProxyConfig) error {
	authority := net.JoinHostPort(host, strconv.Itoa(port))

	var sb strings.Builder
	sb.WriteString("CONNECT " + authority + " HTTP/1.1\r\n")
	sb.WriteString("Host: " + authority + "\r\n")
	if up.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(up.Username + ":" + up.Password))
		sb.WriteString("Proxy-Authorization: Basic " + creds + "\r\n")
	}
	sb.WriteString("\r\n")

	if _, err := conn.Write([]byte(sb.String())); err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.Contains(statusLine, "200") {
		return fmt.Errorf("upstream CONNECT rejected: %s", strings.TrimSpace(statusLine))
	}

	// Consume remaining headers up to the blank line.
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return nil
}

func connectViaSOCKS5(conn net.Conn, host string, port int) error {
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return err
	}

	reply := make([]byte, 2)
	if _, err := readFull(conn, reply); err != nil {
		return err
	}
	if reply[0] != 0x05 || reply[1] != 0x00 {
		return fmt.Errorf("upstream SOCKS5 greeting rejected: %v", reply)
	}

	req := make([]byte, 0, 7+len(host))
	req = append(req, 0x05, 0x01, 0x00, 0x03, byte(len(host)))
	req = append(req, host...)
	req = append(req, byte(port>>8), byte(port))
	if _, err := conn.Write(req); err != nil {
		return err
	}

	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return err
	}
	if header[1] != 0x00 {
		return fmt.Errorf("upstream SOCKS5 CONNECT failed, reply code %d", header[1])
	}

	var addrLen int
	switch header[3] {
	case 0x01:
		addrLen = 4
	case 0x03:
		lenBuf := make([]byte, 1)
		if _, err := readFull(conn, lenBuf); err != nil {
			return err
		}
		addrLen = int(lenBuf[0])
	case 0x04:
		addrLen = 16
	default:
		return fmt.Errorf("upstream SOCKS5 returned unsupported address type %d", header[3])
	}

	bound := make([]byte, addrLen+2)
	_, err := readFull(conn, bound)
	return err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
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
