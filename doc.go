// SPDX-License-Identifier: MIT OR LGPL-3.0-or-later

// Package acme implements an RFC 8555 ACME protocol client: directory
// resolution, nonce management, account registration (with optional
// External Account Binding), and the order/authorization/challenge/
// finalize handshake that turns a CSR into a signed certificate chain.
//
// Challenge fulfillment is delegated to a pkg/fulfill.Fulfiller the caller
// configures via WithFulfiller; pkg/acmecrypto holds the JWK/JWS/key
// plumbing. See Client.Sign for the end-to-end flow and internal/pebbletest
// for a runnable example against an in-process mock CA.
package acme
