// SPDX-License-Identifier: LGPL-3.0-or-later

// Package acmecrypto provides the cryptographic primitives an ACME client
// needs: RSA key generation and PEM codecs, CSR and self-signed certificate
// construction, JWK encoding, RFC 7638 thumbprints, key authorizations, and
// the flattened-JWS signer used for every authenticated ACME request.
package acmecrypto
