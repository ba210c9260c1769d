package common

import (
	"crypto/tls"
	_ "embed"
	"net"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper and stamps every request with the
// envoylog user-agent.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

func userAgent() string {
	return "envoylog/" + strings.TrimSpace(version)
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: userAgent(),
		},
		Timeout: timeout,
	}
}

// LocalHTTPClient returns a client for talking to an appliance on the local
// network. The appliance serves a self-signed certificate so verification is
// skipped; never use this client for internet hosts.
func LocalHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   15 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				// rfc 1918 address, eg 192.168.x.y
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
			userAgent: userAgent(),
		},
		Timeout: timeout,
	}
}
