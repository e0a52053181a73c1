// SPDX-License-Identifier: LGPL-3.0-or-later

// Package pebbletest runs an in-process Pebble ACME CA for this module's
// own integration tests, adapted from the teacher testacme library's
// Pebble wrapper: the original dialed a fixed "testacme" hostname over a
// unix-socket listener via a custom transport; here the CA's own
// httptest.Server address is used directly, which sidesteps the same
// plumbing without changing what the CA itself does.
package pebbletest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/letsencrypt/pebble/v2/ca"
	"github.com/letsencrypt/pebble/v2/db"
	"github.com/letsencrypt/pebble/v2/va"
	"github.com/letsencrypt/pebble/v2/wfe"

	"github.com/coldbrewlabs/acme/pkg/randomports"
)

// Config mirrors the teacher's PebbleServerConfig, trimmed to the fields
// this module's tests exercise.
type Config struct {
	HTTPVerificationPort int
	TLSVerificationPort  int

	PermitInsecureGET             bool
	RequireExternalAccountBinding bool

	CertificateAlternateChains int
	CertificateChainLength     int
	CertificateValidityPeriod  time.Duration

	// Resolver, if set, is the host:port (UDP) of the nameserver Pebble's
	// validation agent should query instead of the system resolver --
	// point this at a pebbletest.Nameserver so a .test-TLD identifier used
	// in a Sign() integration test actually resolves.
	Resolver string

	Logger *log.Logger
}

const (
	DefaultCertificateAlternateChains = 3
	DefaultCertificateChainLength     = 2
	DefaultCertificateValidityPeriod  = 5*365*24*time.Hour + 24*time.Hour
)

func (c *Config) setDefaults() error {
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
	if c.CertificateAlternateChains == 0 {
		c.CertificateAlternateChains = DefaultCertificateAlternateChains
	}
	if c.CertificateChainLength == 0 {
		c.CertificateChainLength = DefaultCertificateChainLength
	}
	if c.CertificateValidityPeriod == 0 {
		c.CertificateValidityPeriod = DefaultCertificateValidityPeriod
	}
	if c.HTTPVerificationPort == 0 || c.TLSVerificationPort == 0 {
		ports, err := randomports.Random(2)
		if err != nil {
			return fmt.Errorf("allocate verification ports: %w", err)
		}
		if c.HTTPVerificationPort == 0 {
			c.HTTPVerificationPort = ports[0].Int()
		}
		if c.TLSVerificationPort == 0 {
			c.TLSVerificationPort = ports[1].Int()
		}
	}
	return nil
}

// Harness wraps a running Pebble CA and exposes just what this module's
// tests need: its directory URL and an *http.Client configured for the
// harness's plain-HTTP httptest.Server.
type Harness struct {
	server *httptest.Server
	db     *db.MemoryStore
}

// New starts a Pebble CA on an ephemeral httptest.Server, with the
// verification (http-01/tls-alpn-01) ports the Fulfiller under test is
// configured to serve on.
func New(cfg Config) (*Harness, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	memdb := db.NewMemoryStore()

	caImpl := ca.New(
		cfg.Logger,
		memdb,
		"",
		cfg.CertificateAlternateChains,
		cfg.CertificateChainLength,
		uint(cfg.CertificateValidityPeriod.Seconds()),
	)

	vaImpl := va.New(
		cfg.Logger,
		cfg.HTTPVerificationPort,
		cfg.TLSVerificationPort,
		false,
		cfg.Resolver,
	)

	frontend := wfe.New(
		cfg.Logger,
		memdb,
		vaImpl,
		caImpl,
		!cfg.PermitInsecureGET,
		cfg.RequireExternalAccountBinding,
	)

	srv := httptest.NewServer(frontend.Handler())

	return &Harness{server: srv, db: memdb}, nil
}

// DirectoryURL is the CA's RFC 8555 directory endpoint.
func (h *Harness) DirectoryURL() string {
	return h.server.URL + "/dir"
}

// HTTPClient returns the httptest.Server's own *http.Client. The server
// is started with httptest.NewServer, so the CA is reached over plain
// HTTP and no TLS certificate is involved.
func (h *Harness) HTTPClient() *http.Client {
	return h.server.Client()
}

// Close shuts down the Pebble CA's httptest.Server.
func (h *Harness) Close() {
	h.server.Close()
}

// WaitReady blocks until the directory endpoint answers, bounded by ctx.
func WaitReady(ctx context.Context, h *Harness) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.DirectoryURL(), nil)
	if err != nil {
		return err
	}
	resp, err := h.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
