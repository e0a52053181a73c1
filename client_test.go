// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrewlabs/acme/pkg/acmecrypto"
)

// fakeCA is a minimal RFC 8555 server exercising only what NewAccount and
// DeactivateAccount need: directory, newNonce, newAccount, and the
// account URL.
type fakeCA struct {
	srv *httptest.Server

	nonceCounter    atomic.Int64
	requestCount    atomic.Int64
	dirRequestCount atomic.Int64
	badNonceOnce    bool
	badNonceServed  atomic.Bool

	transientFailures int64
	transientServed   atomic.Int64

	requireEAB bool
	eabKeyID   string
	eabMACKey  []byte

	deactivated atomic.Bool

	lastProtected map[string]interface{}
}

func newFakeCA(t *testing.T) *fakeCA {
	f := &fakeCA{}
	mux := http.NewServeMux()

	mux.HandleFunc("/dir", func(w http.ResponseWriter, r *http.Request) {
		f.dirRequestCount.Add(1)
		dir := Directory{
			NewNonce:   f.url("/new-nonce"),
			NewAccount: f.url("/new-account"),
			NewOrder:   f.url("/new-order"),
			RevokeCert: f.url("/revoke-cert"),
		}
		dir.Meta.ExternalAccountRequired = f.requireEAB
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(dir))
	})

	mux.HandleFunc("/new-nonce", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", f.nextNonce())
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/acct/1", func(w http.ResponseWriter, r *http.Request) {
		var flat struct {
			Payload string `json:"payload"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&flat))
		payloadBytes, err := base64.RawURLEncoding.DecodeString(flat.Payload)
		require.NoError(t, err)
		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(payloadBytes, &body))
		if body.Status == "deactivated" {
			f.deactivated.Store(true)
		}
		w.Header().Set("Replay-Nonce", f.nextNonce())
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": body.Status})
	})

	mux.HandleFunc("/new-account", func(w http.ResponseWriter, r *http.Request) {
		f.requestCount.Add(1)

		if served := f.transientServed.Add(1); served <= f.transientFailures {
			w.Header().Set("Replay-Nonce", f.nextNonce())
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var flat struct {
			Protected string `json:"protected"`
			Payload   string `json:"payload"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&flat))

		hdrBytes, err := base64.RawURLEncoding.DecodeString(flat.Protected)
		require.NoError(t, err)
		var hdr map[string]interface{}
		require.NoError(t, json.Unmarshal(hdrBytes, &hdr))
		f.lastProtected = hdr

		if f.badNonceOnce && !f.badNonceServed.Load() {
			f.badNonceServed.Store(true)
			w.Header().Set("Replay-Nonce", f.nextNonce())
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ProblemDetails{
				Type:   "urn:ietf:params:acme:error:badNonce",
				Detail: "nonce was already used",
				Status: http.StatusBadRequest,
			})
			return
		}

		if f.requireEAB {
			payloadBytes, err := base64.RawURLEncoding.DecodeString(flat.Payload)
			require.NoError(t, err)
			var body struct {
				ExternalAccountBinding json.RawMessage `json:"externalAccountBinding"`
			}
			require.NoError(t, json.Unmarshal(payloadBytes, &body))
			require.NotEmpty(t, body.ExternalAccountBinding)

			var eabFlat struct {
				Protected string `json:"protected"`
				Payload   string `json:"payload"`
				Signature string `json:"signature"`
			}
			require.NoError(t, json.Unmarshal(body.ExternalAccountBinding, &eabFlat))

			eabHdrBytes, err := base64.RawURLEncoding.DecodeString(eabFlat.Protected)
			require.NoError(t, err)
			var eabHdr map[string]interface{}
			require.NoError(t, json.Unmarshal(eabHdrBytes, &eabHdr))
			assert.Equal(t, "HS256", eabHdr["alg"])
			assert.Equal(t, f.eabKeyID, eabHdr["kid"])

			mac := hmac.New(sha256.New, f.eabMACKey)
			mac.Write([]byte(eabFlat.Protected + "." + eabFlat.Payload))
			expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
			assert.Equal(t, expected, eabFlat.Signature)
		}

		w.Header().Set("Replay-Nonce", f.nextNonce())
		w.Header().Set("Location", f.url("/acct/1"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "valid"})
	})

	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeCA) url(path string) string { return f.srv.URL + path }

func (f *fakeCA) nextNonce() string {
	return fmt.Sprintf("nonce-%d", f.nonceCounter.Add(1))
}

func (f *fakeCA) client(ctx context.Context, opts ...ClientOption) (*Client, error) {
	allOpts := append([]ClientOption{WithHTTPClient(f.srv.Client())}, opts...)
	return NewClient(ctx, f.url("/dir"), allOpts...)
}

func TestNewAccount_JWKFormAndLocationCaptured(t *testing.T) {
	f := newFakeCA(t)
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	kid, err := c.NewAccount(ctx, "admin@example.org", nil)
	require.NoError(t, err)
	assert.Equal(t, f.url("/acct/1"), kid)
	assert.True(t, c.IsBound())

	assert.Contains(t, f.lastProtected, "jwk")
	assert.NotContains(t, f.lastProtected, "kid")
	assert.Equal(t, "nonce-1", f.lastProtected["nonce"])
}

func TestNewAccount_BadNonceRetriesOnce(t *testing.T) {
	f := newFakeCA(t)
	f.badNonceOnce = true
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	kid, err := c.NewAccount(ctx, "admin@example.org", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, kid)
	assert.Equal(t, int64(2), f.requestCount.Load())
}

func TestNewAccount_ExternalAccountBinding(t *testing.T) {
	f := newFakeCA(t)
	f.requireEAB = true
	f.eabKeyID = "eab-kid-1"
	f.eabMACKey = []byte("super-secret-mac-key")
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NewAccount(ctx, "admin@example.org", &EAB{KeyID: f.eabKeyID, MACKey: f.eabMACKey})
	require.NoError(t, err)
}

func TestNewAccount_MissingEABWhenRequired(t *testing.T) {
	f := newFakeCA(t)
	f.requireEAB = true
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NewAccount(ctx, "admin@example.org", nil)
	require.Error(t, err)

	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestSign_RequiresBoundAccountAndFulfiller(t *testing.T) {
	f := newFakeCA(t)
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Sign(ctx, "example.org", nil)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestNewClient_DoesNotContactCAUntilFirstUse(t *testing.T) {
	f := newFakeCA(t)
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, int64(0), f.dirRequestCount.Load())

	_, err = c.NewAccount(ctx, "admin@example.org", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.dirRequestCount.Load())
}

func TestRestore_DoesNotContactCA(t *testing.T) {
	f := newFakeCA(t)
	defer f.srv.Close()

	ctx := context.Background()
	key, err := acmecrypto.GenerateAccountKey()
	require.NoError(t, err)

	c, err := Restore(ctx, &State{Directory: f.url("/dir"), Key: key, AccountURL: f.url("/acct/1")},
		WithHTTPClient(f.srv.Client()))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, int64(0), f.dirRequestCount.Load())
	assert.True(t, c.IsBound())
}

func TestNewAccount_RetriesTransientServerErrors(t *testing.T) {
	f := newFakeCA(t)
	f.transientFailures = 2
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NewAccount(ctx, "admin@example.org", nil)
	require.NoError(t, err)
}

func TestNewAccount_ExhaustedTransientRetriesSurfaceConnectionError(t *testing.T) {
	f := newFakeCA(t)
	f.transientFailures = 100
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NewAccount(ctx, "admin@example.org", nil)
	require.Error(t, err)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindConnection, perr.ErrKind)
}

func TestDeactivateAccount(t *testing.T) {
	f := newFakeCA(t)
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NewAccount(ctx, "admin@example.org", nil)
	require.NoError(t, err)

	require.NoError(t, c.DeactivateAccount(ctx))
	assert.True(t, f.deactivated.Load())
	assert.False(t, c.IsBound())
}

func TestDeactivateAccount_RequiresBoundAccount(t *testing.T) {
	f := newFakeCA(t)
	defer f.srv.Close()

	ctx := context.Background()
	c, err := f.client(ctx)
	require.NoError(t, err)
	defer c.Close()

	err = c.DeactivateAccount(ctx)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}
