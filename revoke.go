// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
)

type revokeRequest struct {
	Certificate string `json:"certificate"`
	Reason      *int   `json:"reason,omitempty"`
}

// Revoke requests revocation of a previously issued certificate, signed
// with the bound account's key. certPEM must contain exactly one
// CERTIFICATE block. reason follows RFC 5280 §5.3.1 CRLReason values
// (0 = unspecified); pass -1 to omit the field.
func (c *Client) Revoke(ctx context.Context, certPEM []byte, reason int) error {
	if !c.IsBound() {
		return &StateError{Reason: "Revoke called before NewAccount or a bound restore"}
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return &CryptoError{Op: "decode certificate PEM", Cause: fmt.Errorf("no CERTIFICATE block found")}
	}

	dir, err := c.directory(ctx)
	if err != nil {
		return err
	}
	if dir.RevokeCert == "" {
		return &StateError{Reason: "directory does not advertise revokeCert"}
	}

	req := revokeRequest{Certificate: base64.RawURLEncoding.EncodeToString(block.Bytes)}
	if reason >= 0 {
		req.Reason = &reason
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("acme: encode revoke request: %w", err)
	}

	c.logger.Printf("acme: revoking certificate")
	_, err = c.signedRequest(ctx, dir.RevokeCert, payload, nil)
	return err
}
