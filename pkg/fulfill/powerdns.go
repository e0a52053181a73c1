// SPDX-License-Identifier: LGPL-3.0-or-later

package fulfill

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const powerDNSNoContent = http.StatusNoContent

// rrset mirrors the PowerDNS API's zone PATCH payload shape.
type rrset struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	TTL        int         `json:"ttl"`
	ChangeType string      `json:"changetype"`
	Records    []rrRecord  `json:"records"`
}

type rrRecord struct {
	Content  string `json:"content"`
	Disabled bool   `json:"disabled"`
}

type rrsetPatch struct {
	RRSets []rrset `json:"rrsets"`
}

// PowerDNSFulfiller fulfills dns-01 by setting the _acme-challenge TXT
// record via a PowerDNS-compatible zone API, then polling an authoritative
// resolver until the record is visible before reporting success.
type PowerDNSFulfiller struct {
	NopFulfiller

	// APIURL is the root URL of the PowerDNS API (e.g. http://ns1:8081).
	APIURL string
	APIKey string

	// TTL applied to the TXT record. Defaults to 60 seconds.
	TTL int

	// Resolver, if set, is queried (host:port, UDP) to confirm propagation
	// before FulfillDNS01 returns. When empty, propagation is not checked.
	Resolver string

	// PropagationTimeout bounds how long FulfillDNS01 waits for the record
	// to become visible at Resolver. Defaults to 60 seconds.
	PropagationTimeout time.Duration

	Client *http.Client
}

func (f *PowerDNSFulfiller) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (f *PowerDNSFulfiller) ttl() int {
	if f.TTL > 0 {
		return f.TTL
	}
	return 60
}

func (f *PowerDNSFulfiller) propagationTimeout() time.Duration {
	if f.PropagationTimeout > 0 {
		return f.PropagationTimeout
	}
	return 60 * time.Second
}

func recordName(domain string) string {
	return fmt.Sprintf("_acme-challenge.%s.", domain)
}

func txtValue(keyAuthorization string) string {
	sum := sha256.Sum256([]byte(keyAuthorization))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (f *PowerDNSFulfiller) patchZone(ctx context.Context, domain string, records []rrRecord, ttl int) error {
	endpoint := fmt.Sprintf("%s/api/v1/servers/localhost/zones/%s", strings.TrimSuffix(f.APIURL, "/"), domain)

	payload := rrsetPatch{RRSets: []rrset{
		{
			Name:       recordName(domain),
			Type:       "TXT",
			TTL:        ttl,
			ChangeType: "REPLACE",
			Records:    records,
		},
	}}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode PowerDNS rrset patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build PowerDNS patch request: %w", err)
	}
	req.Header.Set("X-API-Key", f.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client().Do(req)
	if err != nil {
		return fmt.Errorf("PATCH %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != powerDNSNoContent {
		return fmt.Errorf("PowerDNS API returned %d for %s", resp.StatusCode, endpoint)
	}
	return nil
}

// FulfillDNS01 sets the _acme-challenge TXT record, then polls Resolver (if
// configured) until the record is visible.
func (f *PowerDNSFulfiller) FulfillDNS01(ctx context.Context, domain string, ch Challenge) (bool, error) {
	value := txtValue(ch.KeyAuthorization)
	record := rrRecord{Content: fmt.Sprintf("%q", value), Disabled: false}

	if err := f.patchZone(ctx, domain, []rrRecord{record}, f.ttl()); err != nil {
		return false, err
	}

	if f.Resolver == "" {
		return true, nil
	}
	if err := f.waitForPropagation(ctx, domain, value); err != nil {
		return false, err
	}
	return true, nil
}

// ClearDNS01 removes the _acme-challenge TXT record by replacing it with an
// empty record set.
func (f *PowerDNSFulfiller) ClearDNS01(ctx context.Context, domain string, ch Challenge) error {
	return f.patchZone(ctx, domain, []rrRecord{}, f.ttl())
}

func (f *PowerDNSFulfiller) waitForPropagation(ctx context.Context, domain, want string) error {
	ctx, cancel := context.WithTimeout(ctx, f.propagationTimeout())
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		if ok, err := f.queryTXT(domain, want); err != nil {
			// transient resolver errors are retried until timeout
		} else if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("dns-01 propagation timed out waiting for TXT %s at %s", recordName(domain), f.Resolver)
		case <-ticker.C:
		}
	}
}

func (f *PowerDNSFulfiller) queryTXT(domain, want string) (bool, error) {
	m := new(dns.Msg)
	m.SetQuestion(recordName(domain), dns.TypeTXT)

	c := new(dns.Client)
	c.Timeout = 5 * time.Second

	resp, _, err := c.Exchange(m, f.Resolver)
	if err != nil {
		return false, err
	}
	for _, ans := range resp.Answer {
		txt, ok := ans.(*dns.TXT)
		if !ok {
			continue
		}
		for _, s := range txt.Txt {
			if s == want {
				return true, nil
			}
		}
	}
	return false, nil
}

var _ Fulfiller = (*PowerDNSFulfiller)(nil)
