// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/coldbrewlabs/acme/pkg/acmecrypto"
	"github.com/coldbrewlabs/acme/pkg/fulfill"
)

// DefaultChallengeOrder is the preference order Client uses when an
// authorization offers more than one challenge type it could fulfill.
var DefaultChallengeOrder = []string{"http-01", "dns-01", "tls-alpn-01"}

// Client drives the ACME protocol against one CA directory, bound to one
// account key. It is not safe for concurrent calls to Sign/NewAccount/
// Revoke from multiple goroutines (the nonce pool's single-nonce cache
// assumes a single in-flight request), though read-only accessors are.
type Client struct {
	directoryURL string
	dir          *directoryCache
	transport    *transport

	nonceOnce sync.Once
	nonces    *noncePool
	nonceErr  error

	accountKey *rsa.PrivateKey
	accountURL string

	fulfiller      fulfill.Fulfiller
	challengeOrder []string

	logger *log.Logger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// WithAccountKey binds an existing account key, for a client restored from
// State rather than created fresh.
func WithAccountKey(key *rsa.PrivateKey) ClientOption {
	return func(c *Client) error {
		c.accountKey = key
		return nil
	}
}

// WithAccountURL sets the account's kid directly, skipping NewAccount.
func WithAccountURL(url string) ClientOption {
	return func(c *Client) error {
		c.accountURL = url
		return nil
	}
}

// WithFulfiller sets the challenge-fulfillment handler. Required before
// calling Sign; NewAccount and Revoke do not need one.
func WithFulfiller(f fulfill.Fulfiller) ClientOption {
	return func(c *Client) error {
		c.fulfiller = f
		return nil
	}
}

// WithChallengeOrder overrides DefaultChallengeOrder.
func WithChallengeOrder(order []string) ClientOption {
	return func(c *Client) error {
		c.challengeOrder = order
		return nil
	}
}

// WithLogger sets the *log.Logger used for protocol-level diagnostics.
// Defaults to one discarding output.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithHTTPClient overrides the transport with a caller-supplied
// *http.Client, used by tests to point at an in-process CA.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		c.transport = fromHTTPClient(hc)
		return nil
	}
}

// WithInsecureTransport skips TLS certificate verification, for use
// against local test CAs with self-signed certificates.
func WithInsecureTransport() ClientOption {
	return func(c *Client) error {
		t, err := newInsecureTransport()
		if err != nil {
			return err
		}
		c.transport = t
		return nil
	}
}

// NewClient constructs a Client bound to directoryURL. If no account key is
// supplied via WithAccountKey, a fresh RSA account key is generated. The CA
// is not contacted here: the directory document (and, from it, the nonce
// pool's endpoint) is fetched lazily on first use.
func NewClient(ctx context.Context, directoryURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		directoryURL:   directoryURL,
		dir:            newDirectoryCache(directoryURL),
		challengeOrder: DefaultChallengeOrder,
		logger:         discardLogger(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("acme: client option: %w", err)
		}
	}

	if c.transport == nil {
		t, err := newTransport()
		if err != nil {
			return nil, fmt.Errorf("acme: configure transport: %w", err)
		}
		c.transport = t
	}

	if c.accountKey == nil {
		key, err := acmecrypto.GenerateAccountKey()
		if err != nil {
			return nil, &CryptoError{Op: "generate account key", Cause: err}
		}
		c.accountKey = key
	}

	return c, nil
}

// IsBound reports whether the client has a known account URL (kid),
// whether set via NewAccount, WithAccountURL, or Restore.
func (c *Client) IsBound() bool {
	return c.accountURL != ""
}

// AccountURL returns the account's kid, or "" if not yet bound.
func (c *Client) AccountURL() string {
	return c.accountURL
}

// Close releases the underlying HTTP transport's idle connections.
func (c *Client) Close() error {
	c.transport.close()
	return nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// directory returns the cached directory document, fetching it on first
// call.
func (c *Client) directory(ctx context.Context) (*Directory, error) {
	return c.dir.get(ctx, c.transport)
}

// noncePool returns the nonce pool, building it from the directory's
// newNonce URL on first call. Like directoryCache, the pool is memoized
// with sync.Once, so only the first caller's ctx governs the directory
// fetch that seeds it.
func (c *Client) noncePool(ctx context.Context) (*noncePool, error) {
	c.nonceOnce.Do(func() {
		dir, err := c.directory(ctx)
		if err != nil {
			c.nonceErr = err
			return
		}
		c.nonces = newNoncePool(dir.NewNonce)
	})
	return c.nonces, c.nonceErr
}

// signedRequest POSTs a JWS-wrapped payload to url, decoding a JSON
// response into out (if non-nil) and returning the raw *http.Response for
// header inspection (Location, Replay-Nonce already consumed into the
// nonce pool). On a badNonce protocol error the request is retried exactly
// once with a fresh nonce. Transient (5xx, connection) failures are
// retried up to 3 times with exponential backoff before surfacing as a
// ProtocolError{ErrKind: KindConnection}.
func (c *Client) signedRequest(ctx context.Context, url string, payload []byte, out interface{}) (*http.Response, error) {
	resp, err := c.signedRequestWithRetry(ctx, url, payload, out)
	if err == nil {
		return resp, nil
	}

	var perr *ProtocolError
	if !asProtocolError(err, &perr) || perr.ErrKind != KindBadNonce {
		return resp, err
	}

	c.logger.Printf("acme: bad nonce on %s, retrying once", url)
	c.nonces.clear()
	return c.signedRequestWithRetry(ctx, url, payload, out)
}

func asProtocolError(err error, target **ProtocolError) bool {
	if pe, ok := err.(*ProtocolError); ok {
		*target = pe
		return true
	}
	return false
}

func (c *Client) signedRequestWithRetry(ctx context.Context, url string, payload []byte, out interface{}) (*http.Response, error) {
	var resp *http.Response
	err := withConnectionRetry(ctx, func() error {
		r, err := c.signedRequestOnce(ctx, url, payload, out)
		resp = r
		return err
	})
	return resp, err
}

func (c *Client) signedRequestOnce(ctx context.Context, url string, payload []byte, out interface{}) (*http.Response, error) {
	nonces, err := c.noncePool(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := nonces.get(ctx, c.transport)
	if err != nil {
		return nil, fmt.Errorf("acme: get nonce: %w", err)
	}

	kid := c.accountURL
	raw, err := acmecrypto.Sign(payload, c.accountKey, nonce, url, kid)
	if err != nil {
		return nil, &CryptoError{Op: "sign request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("acme: build signed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/jose+json")

	resp, err := c.transport.do(req)
	if err != nil {
		return nil, &transientRequestError{err: fmt.Errorf("acme: %w", err)}
	}
	defer resp.Body.Close()

	nonces.set(resp.Header.Get("Replay-Nonce"))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("acme: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var problem ProblemDetails
		var reqErr error
		if jerr := json.Unmarshal(body, &problem); jerr == nil && problem.Type != "" {
			reqErr = newProtocolError(problem)
		} else {
			reqErr = fmt.Errorf("acme: request to %s failed with status %d: %s", url, resp.StatusCode, string(body))
		}
		if resp.StatusCode >= 500 {
			return resp, &transientRequestError{err: reqErr}
		}
		return resp, reqErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("acme: decode response from %s: %w", url, err)
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
