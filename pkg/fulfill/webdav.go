// SPDX-License-Identifier: LGPL-3.0-or-later

package fulfill

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	webDAVTimeout    = 30 * time.Second
	webDAVMaxRetries = 3
	webDAVRetryWait  = 1 * time.Second
)

// WebDAVFulfiller fulfills http-01 by PUTing the key authorization to
// /.well-known/acme-challenge/<token> on the target domain over WebDAV
// (basic-auth PUT/DELETE), the way a shared-hosting webserver with WebDAV
// enabled would expect.
type WebDAVFulfiller struct {
	NopFulfiller

	Username string
	Password string

	// Client is used for requests; a default 30s-timeout client is used
	// when nil.
	Client *http.Client
}

func (f *WebDAVFulfiller) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: webDAVTimeout}
}

func (f *WebDAVFulfiller) url(domain string, ch Challenge) string {
	return fmt.Sprintf("http://%s/.well-known/acme-challenge/%s", domain, ch.Token)
}

func (f *WebDAVFulfiller) do(ctx context.Context, method, url string, body string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build %s request: %w", method, err))
		}
		req.SetBasicAuth(f.Username, f.Password)

		resp, err := f.client().Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s %s: server error %d", method, url, resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode))
		}
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(webDAVRetryWait), webDAVMaxRetries)
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// FulfillHTTP01 uploads the key authorization via PUT.
func (f *WebDAVFulfiller) FulfillHTTP01(ctx context.Context, domain string, ch Challenge) (bool, error) {
	if err := f.do(ctx, http.MethodPut, f.url(domain, ch), ch.KeyAuthorization); err != nil {
		return false, err
	}
	return true, nil
}

// ClearHTTP01 removes the uploaded key authorization via DELETE.
func (f *WebDAVFulfiller) ClearHTTP01(ctx context.Context, domain string, ch Challenge) error {
	return f.do(ctx, http.MethodDelete, f.url(domain, ch), "")
}

var _ Fulfiller = (*WebDAVFulfiller)(nil)
