// SPDX-License-Identifier: LGPL-3.0-or-later

package fulfill

import "context"

// Challenge carries the fields a fulfiller needs out of an ACME
// authorization's challenge object. It is deliberately independent of the
// engine's own challenge type so this package never imports the root
// module.
type Challenge struct {
	Type  string
	URL   string
	Token string

	// KeyAuthorization is token || "." || base64url(thumbprint), computed by
	// the engine from the account key before the hook is invoked.
	KeyAuthorization string
}

// Fulfiller is the capability set the protocol engine composes with at
// challenge-dispatch time. Each Fulfill* hook answers whether it handled the
// challenge (true), declined it (false, nil error), or failed outright
// (any error). The matching Clear* hook always runs afterward for whichever
// challenge was dispatched, regardless of how the authorization resolved.
type Fulfiller interface {
	FulfillHTTP01(ctx context.Context, domain string, ch Challenge) (bool, error)
	ClearHTTP01(ctx context.Context, domain string, ch Challenge) error

	FulfillDNS01(ctx context.Context, domain string, ch Challenge) (bool, error)
	ClearDNS01(ctx context.Context, domain string, ch Challenge) error

	FulfillTLSALPN01(ctx context.Context, domain string, ch Challenge) (bool, error)
	ClearTLSALPN01(ctx context.Context, domain string, ch Challenge) error
}

// NopFulfiller answers every Fulfill* hook with "not handled" and every
// Clear* hook with no-op success. Built-in variants embed it and override
// only the hooks they implement.
type NopFulfiller struct{}

func (NopFulfiller) FulfillHTTP01(context.Context, string, Challenge) (bool, error) { return false, nil }
func (NopFulfiller) ClearHTTP01(context.Context, string, Challenge) error           { return nil }

func (NopFulfiller) FulfillDNS01(context.Context, string, Challenge) (bool, error) { return false, nil }
func (NopFulfiller) ClearDNS01(context.Context, string, Challenge) error           { return nil }

func (NopFulfiller) FulfillTLSALPN01(context.Context, string, Challenge) (bool, error) {
	return false, nil
}
func (NopFulfiller) ClearTLSALPN01(context.Context, string, Challenge) error { return nil }

var _ Fulfiller = NopFulfiller{}
