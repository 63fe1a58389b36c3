package httpengine

import (
	"bufio"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vellum-proxy/vellum/internal/domain"
)

const (
	maxRequestLineBytes = 8 * 1024
	maxHeaders          = 100
)

// parsedRequest is the result of reading one HTTP request off the wire.
type parsedRequest struct {
	Method  string
	Target  string // raw request-target as written on the wire
	URI     *url.URL
	Headers map[string]string // lower-cased keys
}

// readRequestLine reads one CRLF-terminated request line, bounded to
// maxRequestLineBytes. Returns io.EOF, unwrapped, when the connection
// closes cleanly between requests.
func readRequestLine(r *bufio.Reader) (string, error) {
	line, err := readLimitedLine(r, maxRequestLineBytes)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readLimitedLine(r *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if sb.Len() == 0 {
				return "", err
			}
			return sb.String(), err
		}
		sb.WriteByte(b)
		if b == '\n' {
			return sb.String(), nil
		}
		if sb.Len() > limit {
			return "", &domain.ProtocolError{Reason: "request line too long"}
		}
	}
}

// readHeaders reads CRLF-terminated header lines until a blank line,
// bounded to maxHeaders entries.
func readHeaders(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	count := 0
	for {
		line, err := readLimitedLine(r, maxRequestLineBytes)
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return headers, nil
		}
		count++
		if count > maxHeaders {
			return nil, &domain.ProtocolError{Reason: "too many headers"}
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, &domain.ProtocolError{Reason: "malformed header line"}
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if existing, ok := headers[name]; ok {
			headers[name] = existing + ", " + value
		} else {
			headers[name] = value
		}
	}
}

// parseRequestTarget resolves the request line into a usable URI per
// spec §4.3 step 3.
func parseRequestTarget(method, target string, headers map[string]string) (*url.URL, error) {
	if method == "CONNECT" {
		return url.Parse("https://" + target)
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return nil, &domain.ProtocolError{Reason: "invalid absolute URI"}
		}
		return u, nil
	}

	host := headers["host"]
	if host == "" {
		host = "localhost"
	}
	u, err := url.Parse("http://" + host + target)
	if err != nil {
		return nil, &domain.ProtocolError{Reason: "invalid origin-form target"}
	}
	return u, nil
}

// splitHostPort parses "host:port" defaulting port to defaultPort when
// absent.
func splitHostPort(authority string, defaultPort int) (string, int, error) {
	host, portStr, err := splitLast(authority, ':')
	if err != nil {
		return authority, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q", authority)
	}
	return host, port, nil
}

func splitLast(s string, sep byte) (string, string, error) {
	idx := strings.LastIndexByte(s, sep)
	if idx < 0 {
		return "", "", fmt.Errorf("separator not found")
	}
	return s[:idx], s[idx+1:], nil
}
