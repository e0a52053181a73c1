//go:build never && not_ever

package acmedocs

import (
	"context"
	"log"

	"github.com/coldbrewlabs/acme"
	"github.com/coldbrewlabs/acme/pkg/fulfill"
)

// customFulfiller demonstrates wiring a Fulfiller that only handles
// tls-alpn-01, the contract slot this module leaves to callers (see
// SPEC_FULL.md's design notes on tls-alpn-01). It embeds NopFulfiller so
// http-01 and dns-01 default to "not handled".
type customFulfiller struct {
	fulfill.NopFulfiller
}

func (customFulfiller) FulfillTLSALPN01(ctx context.Context, domain string, ch fulfill.Challenge) (bool, error) {
	// stand up a listener presenting the acmeIdentifier extension derived
	// from ch.KeyAuthorization, then return true.
	return false, nil
}

func ExampleSign() {
	ctx := context.Background()

	client, err := acme.NewClient(ctx, "https://acme-v02.api.letsencrypt.org/directory",
		acme.WithFulfiller(customFulfiller{}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if _, err := client.NewAccount(ctx, "admin@example.com", nil); err != nil {
		log.Fatal(err)
	}

	cert, err := client.Sign(ctx, "example.com", nil /* csr PEM */)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("issued %d bytes of certificate chain", len(cert))
}
