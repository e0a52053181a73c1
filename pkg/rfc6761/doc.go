// SPDX-License-Identifier: MIT OR LGPL-3.0-or-later

// Package rfc6761 provides helpers for a subset of rfc6761 domain TLD.
// Specifically, helpers are offered to build and work with .test TLD names for
// testing purposes.
package rfc6761
