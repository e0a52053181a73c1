// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/coldbrewlabs/acme/pkg/acmecrypto"
	"github.com/coldbrewlabs/acme/pkg/fulfill"
)

// Identifier is one entry of an order's identifier list (RFC 8555 §9.7.7).
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type orderRequest struct {
	Identifiers []Identifier `json:"identifiers"`
}

// orderObject is the wire shape of an ACME order resource.
type orderObject struct {
	Status         string   `json:"status"`
	Finalize       string   `json:"finalize"`
	Certificate    string   `json:"certificate,omitempty"`
	Authorizations []string `json:"authorizations"`
	Error          *ProblemDetails `json:"error,omitempty"`
}

// authorizationObject is the wire shape of an ACME authorization resource.
type authorizationObject struct {
	Identifier Identifier         `json:"identifier"`
	Status     string             `json:"status"`
	Challenges []challengeObject  `json:"challenges"`
}

// challengeObject is the wire shape of an ACME challenge resource.
type challengeObject struct {
	Type   string          `json:"type"`
	URL    string          `json:"url"`
	Token  string          `json:"token"`
	Status string          `json:"status"`
	Error  *ProblemDetails `json:"error,omitempty"`
}

type finalizeRequest struct {
	CSR string `json:"csr"`
}

// pollBackoff builds the exponential backoff policy shared by
// authorization and order polling: 1s initial, factor 2, capped at 30s,
// bounded overall by ctx/timeout rather than backoff's own max-elapsed so
// context cancellation always wins.
func pollBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

const signTimeout = 300 * time.Second

// Sign drives the full order/authorize/challenge/finalize/download
// handshake for a single domain and returns the issued certificate chain
// in PEM form, leaf first.
func (c *Client) Sign(ctx context.Context, domain string, csr []byte) ([]byte, error) {
	if !c.IsBound() {
		return nil, &StateError{Reason: "Sign called before NewAccount or a bound restore"}
	}
	if c.fulfiller == nil {
		return nil, &StateError{Reason: "Sign called without a configured Fulfiller"}
	}

	ctx, cancel := context.WithTimeout(ctx, signTimeout)
	defer cancel()

	c.logger.Printf("acme: signing CSR for %s", domain)

	order, orderURL, err := c.newOrder(ctx, domain)
	if err != nil {
		return nil, err
	}

	for _, authURL := range order.Authorizations {
		if err := c.processAuthorization(ctx, domain, authURL); err != nil {
			return nil, err
		}
	}

	return c.finalizeAndDownload(ctx, order, orderURL, csr)
}

func (c *Client) newOrder(ctx context.Context, domain string) (*orderObject, string, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return nil, "", err
	}

	req := orderRequest{Identifiers: []Identifier{{Type: "dns", Value: domain}}}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("acme: encode new order request: %w", err)
	}

	var order orderObject
	resp, err := c.signedRequest(ctx, dir.NewOrder, payload, &order)
	if err != nil {
		return nil, "", err
	}

	orderURL := resp.Header.Get("Location")
	if orderURL == "" {
		return nil, "", fmt.Errorf("acme: newOrder response carried no Location header")
	}

	c.logger.Printf("acme: order created for %s: %s", domain, orderURL)
	return &order, orderURL, nil
}

// processAuthorization fetches one authorization, dispatches the
// fulfillment hooks if it is still pending, and polls until it leaves
// pending/processing.
func (c *Client) processAuthorization(ctx context.Context, domain, authURL string) error {
	c.logger.Printf("acme: processing authorization for %s: %s", domain, authURL)

	auth, err := c.getAuthorization(ctx, authURL)
	if err != nil {
		return err
	}

	switch auth.Status {
	case "valid":
		c.logger.Printf("acme: authorization for %s already valid, skipping fulfillment", domain)
		return nil
	case "pending":
		// proceed below
	default:
		return &AuthorizationFailedError{Domain: domain, Problem: ProblemDetails{Detail: fmt.Sprintf("unexpected authorization status %q", auth.Status)}}
	}

	dispatched, err := c.dispatchChallenge(ctx, domain, auth.Challenges)
	if err != nil {
		return err
	}

	defer func() {
		clearCtx, clearCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer clearCancel()
		if err := c.clearChallenge(clearCtx, domain, dispatched); err != nil {
			c.logger.Printf("acme: cleanup for %s %s failed: %v", dispatched.Type, domain, err)
		}
	}()

	return c.pollAuthorization(ctx, domain, authURL)
}

func (c *Client) getAuthorization(ctx context.Context, url string) (*authorizationObject, error) {
	var auth authorizationObject
	if _, err := c.signedRequest(ctx, url, []byte(""), &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// dispatchChallenge tries each challenge in Client.challengeOrder
// preference, invoking the matching Fulfill* hook, and POSTs readiness for
// the first one the fulfiller accepts.
func (c *Client) dispatchChallenge(ctx context.Context, domain string, challenges []challengeObject) (challengeObject, error) {
	byType := make(map[string]challengeObject, len(challenges))
	for _, ch := range challenges {
		byType[ch.Type] = ch
	}

	var tried []string
	for _, typ := range c.challengeOrder {
		ch, ok := byType[typ]
		if !ok {
			continue
		}
		tried = append(tried, typ)

		ka, err := c.keyAuthorization(ch.Token)
		if err != nil {
			return challengeObject{}, err
		}
		fch := fulfill.Challenge{Type: ch.Type, URL: ch.URL, Token: ch.Token, KeyAuthorization: ka}

		c.logger.Printf("acme: trying to fulfill %s for %s", typ, domain)
		ok2, err := c.fulfill(ctx, typ, domain, fch)
		if err != nil {
			return challengeObject{}, &FulfillmentFailedError{Domain: domain, Tried: tried, Cause: err}
		}
		if !ok2 {
			c.logger.Printf("acme: skipping %s for %s", typ, domain)
			continue
		}

		if err := c.respondChallenge(ctx, ch.URL); err != nil {
			clearCtx, clearCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer clearCancel()
			if cerr := c.clearChallenge(clearCtx, domain, ch); cerr != nil {
				c.logger.Printf("acme: cleanup for %s %s failed: %v", typ, domain, cerr)
			}
			return challengeObject{}, err
		}
		c.logger.Printf("acme: %s for %s fulfilled, awaiting validation", typ, domain)
		return ch, nil
	}

	return challengeObject{}, &FulfillmentFailedError{Domain: domain, Tried: tried}
}

func (c *Client) fulfill(ctx context.Context, typ, domain string, ch fulfill.Challenge) (bool, error) {
	switch typ {
	case "http-01":
		return c.fulfiller.FulfillHTTP01(ctx, domain, ch)
	case "dns-01":
		return c.fulfiller.FulfillDNS01(ctx, domain, ch)
	case "tls-alpn-01":
		return c.fulfiller.FulfillTLSALPN01(ctx, domain, ch)
	default:
		return false, nil
	}
}

func (c *Client) clearChallenge(ctx context.Context, domain string, ch challengeObject) error {
	if ch.Type == "" {
		return nil
	}
	ka, err := c.keyAuthorization(ch.Token)
	if err != nil {
		return err
	}
	fch := fulfill.Challenge{Type: ch.Type, URL: ch.URL, Token: ch.Token, KeyAuthorization: ka}

	switch ch.Type {
	case "http-01":
		return c.fulfiller.ClearHTTP01(ctx, domain, fch)
	case "dns-01":
		return c.fulfiller.ClearDNS01(ctx, domain, fch)
	case "tls-alpn-01":
		return c.fulfiller.ClearTLSALPN01(ctx, domain, fch)
	default:
		return nil
	}
}

func (c *Client) keyAuthorization(token string) (string, error) {
	jwk := acmecrypto.JWK(c.accountKey)
	ka, err := acmecrypto.KeyAuthorization(token, jwk)
	if err != nil {
		return "", &CryptoError{Op: "compute key authorization", Cause: err}
	}
	return ka, nil
}

// respondChallenge signals challenge readiness with an empty JSON object,
// sent exactly once per dispatched challenge.
func (c *Client) respondChallenge(ctx context.Context, challengeURL string) error {
	_, err := c.signedRequest(ctx, challengeURL, []byte("{}"), nil)
	return err
}

func (c *Client) pollAuthorization(ctx context.Context, domain, authURL string) error {
	var final authorizationObject

	op := func() error {
		auth, err := c.getAuthorization(ctx, authURL)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch auth.Status {
		case "pending", "processing":
			c.logger.Printf("acme: authorization for %s still %s", domain, auth.Status)
			return fmt.Errorf("authorization still %s", auth.Status)
		default:
			final = *auth
			return nil
		}
	}

	if err := backoff.Retry(op, pollBackoff(ctx)); err != nil {
		if ctx.Err() != nil {
			return &TimeoutError{Op: fmt.Sprintf("authorization for %s", domain)}
		}
		return err
	}

	if final.Status != "valid" {
		problem := ProblemDetails{Detail: fmt.Sprintf("authorization status %q", final.Status)}
		for _, ch := range final.Challenges {
			if ch.Error != nil {
				problem = *ch.Error
				break
			}
		}
		return &AuthorizationFailedError{Domain: domain, Problem: problem}
	}

	c.logger.Printf("acme: authorization for %s is valid", domain)
	return nil
}

func (c *Client) finalizeAndDownload(ctx context.Context, order *orderObject, orderURL string, csr []byte) ([]byte, error) {
	der, err := acmecrypto.CSRDER(csr)
	if err != nil {
		return nil, &CryptoError{Op: "convert CSR to DER", Cause: err}
	}

	c.logger.Printf("acme: finalizing order %s", orderURL)
	payload, err := json.Marshal(finalizeRequest{CSR: base64.RawURLEncoding.EncodeToString(der)})
	if err != nil {
		return nil, fmt.Errorf("acme: encode finalize request: %w", err)
	}
	if _, err := c.signedRequest(ctx, order.Finalize, payload, order); err != nil {
		return nil, err
	}

	final, err := c.pollOrder(ctx, orderURL)
	if err != nil {
		return nil, err
	}

	c.logger.Printf("acme: order %s valid, downloading certificate", orderURL)
	resp, err := c.signedRequest(ctx, final.Certificate, []byte(""), nil)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("acme: read certificate response: %w", err)
	}
	return body, nil
}

func (c *Client) pollOrder(ctx context.Context, orderURL string) (*orderObject, error) {
	var final orderObject

	op := func() error {
		var order orderObject
		if _, err := c.signedRequest(ctx, orderURL, []byte(""), &order); err != nil {
			return backoff.Permanent(err)
		}
		switch order.Status {
		case "valid", "invalid":
			final = order
			return nil
		default:
			c.logger.Printf("acme: order %s still %s", orderURL, order.Status)
			return fmt.Errorf("order still %s", order.Status)
		}
	}

	if err := backoff.Retry(op, pollBackoff(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Op: fmt.Sprintf("order %s", orderURL)}
		}
		return nil, err
	}

	if final.Status != "valid" {
		problem := ProblemDetails{Detail: "order finalized as invalid"}
		if final.Error != nil {
			problem = *final.Error
		}
		return nil, &OrderFailedError{OrderURL: orderURL, Problem: problem}
	}

	return &final, nil
}
