// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// transport wraps an *http.Client configured for HTTP/2, the way CAs like
// Let's Encrypt expect clients to speak to them. It is a scoped resource: a
// Client acquires one at construction and releases it on Close.
type transport struct {
	client *http.Client
}

func newTransport() (*transport, error) {
	base := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if err := http2.ConfigureTransport(base); err != nil {
		return nil, err
	}

	return &transport{
		client: &http.Client{
			Transport: base,
			Timeout:   30 * time.Second,
		},
	}, nil
}

// newInsecureTransport builds a transport that accepts any server
// certificate, for use against local/test CAs (e.g. Pebble's self-signed
// management certificate) where callers supply no separate *http.Client.
func newInsecureTransport() (*transport, error) {
	base := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	if err := http2.ConfigureTransport(base); err != nil {
		return nil, err
	}

	return &transport{
		client: &http.Client{
			Transport: base,
			Timeout:   30 * time.Second,
		},
	}, nil
}

// fromHTTPClient wraps a caller-supplied *http.Client verbatim, used by
// test harnesses that need full control over dialing (e.g. routing a fixed
// hostname to an httptest server's ephemeral address).
func fromHTTPClient(c *http.Client) *transport {
	return &transport{client: c}
}

func (t *transport) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "acme-go-client")
	return t.client.Do(req)
}

func (t *transport) close() {
	if tr, ok := t.client.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
}
