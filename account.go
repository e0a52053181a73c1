// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coldbrewlabs/acme/pkg/acmecrypto"
)

// EAB carries the External Account Binding credentials a CA issues
// out-of-band (typically through its own web console) to link a new ACME
// account to an existing CA-side account.
type EAB struct {
	KeyID string
	MACKey []byte
}

type newAccountRequest struct {
	TermsOfServiceAgreed   bool              `json:"termsOfServiceAgreed"`
	Contact                []string          `json:"contact,omitempty"`
	ExternalAccountBinding json.RawMessage   `json:"externalAccountBinding,omitempty"`
}

// NewAccount registers the client's account key with the CA. It is a
// no-op error-wise if the account already exists server-side: the account
// URL is still captured from the Location header and returned.
func (c *Client) NewAccount(ctx context.Context, email string, eab *EAB) (string, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return "", err
	}

	req := newAccountRequest{
		TermsOfServiceAgreed: true,
	}
	if email != "" {
		req.Contact = []string{"mailto:" + email}
	}

	if eab != nil || dir.Meta.ExternalAccountRequired {
		if eab == nil {
			return "", &StateError{Reason: "CA requires external account binding but none was supplied"}
		}
		jwk := acmecrypto.JWK(c.accountKey)
		eabJWS, err := acmecrypto.SignEAB(jwk, eab.MACKey, eab.KeyID, dir.NewAccount)
		if err != nil {
			return "", &CryptoError{Op: "sign external account binding", Cause: err}
		}
		req.ExternalAccountBinding = json.RawMessage(eabJWS)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("acme: encode new account request: %w", err)
	}

	resp, err := c.signedRequest(ctx, dir.NewAccount, payload, nil)
	if err != nil {
		return "", err
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("acme: newAccount response carried no Location header")
	}

	c.logger.Printf("acme: account bound: %s", loc)
	c.accountURL = loc
	return loc, nil
}

type deactivateAccountRequest struct {
	Status string `json:"status"`
}

// DeactivateAccount deactivates the bound account (RFC 8555 §7.3.6). A
// deactivated account can no longer request issuance or access its
// orders and authorizations. On success the client is unbound, the same
// as a fresh Client that has never called NewAccount.
func (c *Client) DeactivateAccount(ctx context.Context) error {
	if !c.IsBound() {
		return &StateError{Reason: "DeactivateAccount called before NewAccount or a bound restore"}
	}

	c.logger.Printf("acme: deactivating account: %s", c.accountURL)

	payload, err := json.Marshal(deactivateAccountRequest{Status: "deactivated"})
	if err != nil {
		return fmt.Errorf("acme: encode deactivate account request: %w", err)
	}

	if _, err := c.signedRequest(ctx, c.accountURL, payload, nil); err != nil {
		return err
	}

	c.accountURL = ""
	return nil
}
