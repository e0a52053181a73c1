// SPDX-License-Identifier: LGPL-3.0-or-later

// Package fulfill defines the challenge fulfillment contract the ACME
// protocol engine dispatches into at challenge time, plus the built-in
// variants for http-01 (static file directory, WebDAV) and dns-01 (a
// PowerDNS-compatible provider API).
package fulfill
