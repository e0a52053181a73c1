// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// noncePool caches at most one replay-nonce, refilling from the CA's
// newNonce endpoint on demand. Guarded by a mutex even though a Client is
// typically used from one goroutine at a time, so the "used at most once"
// invariant holds even if a caller shares a *Client for read-only status
// polling from another goroutine.
type noncePool struct {
	newNonceURL string

	mu    sync.Mutex
	nonce string
}

func newNoncePool(newNonceURL string) *noncePool {
	return &noncePool{newNonceURL: newNonceURL}
}

// get returns a usable nonce, either the cached one or a freshly fetched
// one from the newNonce endpoint.
func (p *noncePool) get(ctx context.Context, t *transport) (string, error) {
	p.mu.Lock()
	if p.nonce != "" {
		n := p.nonce
		p.nonce = ""
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	return p.fetch(ctx, t)
}

// clear discards any cached nonce, used after a badNonce response so the
// next get() is forced to fetch a fresh one.
func (p *noncePool) clear() {
	p.mu.Lock()
	p.nonce = ""
	p.mu.Unlock()
}

// set stores the nonce surfaced by a response's Replay-Nonce header for
// reuse by the next request.
func (p *noncePool) set(nonce string) {
	if nonce == "" {
		return
	}
	p.mu.Lock()
	p.nonce = nonce
	p.mu.Unlock()
}

// fetch retries transient (5xx, connection) failures up to 3 times with
// exponential backoff before surfacing a ProtocolError{ErrKind: KindConnection}.
func (p *noncePool) fetch(ctx context.Context, t *transport) (string, error) {
	var nonce string
	err := withConnectionRetry(ctx, func() error {
		n, err := p.fetchOnce(ctx, t)
		if err != nil {
			return err
		}
		nonce = n
		return nil
	})
	return nonce, err
}

func (p *noncePool) fetchOnce(ctx context.Context, t *transport) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.newNonceURL, nil)
	if err != nil {
		return "", fmt.Errorf("acme: build newNonce request: %w", err)
	}

	resp, err := t.do(req)
	if err != nil {
		return "", &transientRequestError{err: fmt.Errorf("acme: fetch nonce: %w", err)}
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.newNonceURL, nil)
		if err != nil {
			return "", fmt.Errorf("acme: build newNonce GET request: %w", err)
		}
		resp, err = t.do(req)
		if err != nil {
			return "", &transientRequestError{err: fmt.Errorf("acme: fetch nonce (GET fallback): %w", err)}
		}
		resp.Body.Close()
	}

	if resp.StatusCode >= 500 {
		return "", &transientRequestError{err: fmt.Errorf("acme: newNonce request failed with status %d", resp.StatusCode)}
	}

	nonce := resp.Header.Get("Replay-Nonce")
	if nonce == "" {
		return "", fmt.Errorf("acme: newNonce response carried no Replay-Nonce header")
	}
	return nonce, nil
}
