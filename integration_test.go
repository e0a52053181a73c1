// SPDX-License-Identifier: LGPL-3.0-or-later

//go:build integration

package acme

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coldbrewlabs/acme/internal/pebbletest"
	"github.com/coldbrewlabs/acme/pkg/acmecrypto"
	"github.com/coldbrewlabs/acme/pkg/fulfill"
)

// serveChallengeRoot answers Pebble's http-01 validation requests by
// serving dir straight off disk at /.well-known/acme-challenge/, the
// layout StaticFileFulfiller writes into.
func serveChallengeRoot(t *testing.T, port int, dir string) {
	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)

	srv := &http.Server{Handler: http.StripPrefix(
		"/.well-known/acme-challenge/", http.FileServer(http.Dir(dir)),
	)}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Close() })
}

// TestSign_AgainstPebble exercises the full order/authorize/http-01/
// finalize/download handshake against an in-process Pebble CA, with a
// StaticFileFulfiller standing in for the validation webserver and a
// pebbletest.Nameserver standing in for the domain's authoritative DNS.
func TestSign_AgainstPebble(t *testing.T) {
	ctx, cancel := context.WithTimeout(pebbletest.NewTestingContext(t), 90*time.Second)
	defer cancel()

	records := &pebbletest.RecordSet{}
	ns, err := pebbletest.NewNameserver(ctx, records)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ns.Shutdown() })

	challengeRoot := t.TempDir()
	const httpVerificationPort = 5002
	serveChallengeRoot(t, httpVerificationPort, challengeRoot)

	harness, err := pebbletest.New(pebbletest.Config{
		HTTPVerificationPort: httpVerificationPort,
		Resolver:             ns.Addr(),
	})
	require.NoError(t, err)
	t.Cleanup(harness.Close)
	require.NoError(t, pebbletest.WaitReady(ctx, harness))

	domain := pebbletest.TestDomain(t)

	client, err := NewClient(ctx, harness.DirectoryURL(),
		WithHTTPClient(harness.HTTPClient()),
		WithFulfiller(&fulfill.StaticFileFulfiller{ChallengeRoot: challengeRoot}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.NewAccount(ctx, "integration@example.org", nil)
	require.NoError(t, err)

	domainKey, err := acmecrypto.GenerateDomainKey(2048)
	require.NoError(t, err)
	csr, err := acmecrypto.BuildCSR(domain, domainKey)
	require.NoError(t, err)

	certPEM, err := client.Sign(ctx, domain, csr)
	require.NoError(t, err)
	require.Contains(t, string(certPEM), "-----BEGIN CERTIFICATE-----")
}
