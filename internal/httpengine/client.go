package httpengine

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/upstream"
)

// newClient builds an *http.Client whose Transport dials through the
// listener's upstream proxy (if any) via the UpstreamConnector, and that
// never auto-follows redirects — redirect handling is manual per §4.3.3.
func newClient(up *domain.UpstreamProxyConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			port, err := net.LookupPort(network, portStr)
			if err != nil {
				return nil, err
			}
			return upstream.Connect(host, port, up, timeout)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
