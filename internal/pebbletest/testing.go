// SPDX-License-Identifier: LGPL-3.0-or-later

package pebbletest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/coldbrewlabs/acme/pkg/rfc6761"
)

// NewTestingContext creates a context canceled at the end of the current
// test.
func NewTestingContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

var tokenReplacer = strings.NewReplacer("/", "_")

// TestDomain derives a stable, collision-resistant .test-TLD domain name
// from the running test's name, for use as the identifier in a Sign call
// against the Pebble harness.
func TestDomain(t testing.TB) string {
	name := tokenReplacer.Replace(strings.ToLower(t.Name()))
	return strings.TrimSuffix(rfc6761.CanonicalTest(name), ".")
}

var (
	sharedOnce    sync.Once
	sharedHarness *Harness
	sharedErr     error
)

// Shared returns a process-wide Pebble harness, started once and reused
// across tests that don't need ports of their own. Tests needing a
// specific verification port configuration should call New directly
// instead.
func Shared() (*Harness, error) {
	sharedOnce.Do(func() {
		sharedHarness, sharedErr = New(Config{})
	})
	if sharedErr != nil {
		return nil, fmt.Errorf("pebbletest: shared harness: %w", sharedErr)
	}
	return sharedHarness, nil
}
