// SPDX-License-Identifier: LGPL-3.0-or-later

package pebbletest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarness_DirectoryServesJSON(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(h.Close)

	require.NoError(t, WaitReady(NewTestingContext(t), h))

	resp, err := h.HTTPClient().Get(h.DirectoryURL())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTestDomain_IsStableAndDotTLD(t *testing.T) {
	d1 := TestDomain(t)
	d2 := TestDomain(t)
	assert.Equal(t, d1, d2)
	assert.Contains(t, d1, ".test")
}
