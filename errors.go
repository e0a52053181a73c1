// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import "fmt"

// Error is implemented by every typed error this package returns, so
// callers can switch on Kind() without type-asserting each concrete type.
type Error interface {
	error
	Kind() string
}

// ProblemDetails mirrors an RFC 7807 problem document as returned by an
// ACME server.
type ProblemDetails struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// ErrorKind enumerates the urn:ietf:params:acme:error:* values this package
// distinguishes, plus local conditions (KindConnection, KindUnknown).
type ErrorKind string

const (
	KindBadNonce                ErrorKind = "badNonce"
	KindUnauthorized             ErrorKind = "unauthorized"
	KindMalformed                ErrorKind = "malformed"
	KindRateLimited               ErrorKind = "rateLimited"
	KindAccountDoesNotExist      ErrorKind = "accountDoesNotExist"
	KindAlreadyRegistered        ErrorKind = "alreadyRegistered"
	KindExternalAccountRequired  ErrorKind = "externalAccountRequired"
	KindUnsupportedContact       ErrorKind = "unsupportedContact"
	KindUserActionRequired       ErrorKind = "userActionRequired"
	KindServerInternal           ErrorKind = "serverInternal"
	KindConnection                ErrorKind = "connection"
	KindUnknown                   ErrorKind = "unknown"
)

var acmeErrorURNPrefix = "urn:ietf:params:acme:error:"

func parseErrorKind(urn string) ErrorKind {
	if len(urn) <= len(acmeErrorURNPrefix) || urn[:len(acmeErrorURNPrefix)] != acmeErrorURNPrefix {
		return KindUnknown
	}
	suffix := urn[len(acmeErrorURNPrefix):]
	switch ErrorKind(suffix) {
	case KindBadNonce, KindUnauthorized, KindMalformed, KindRateLimited,
		KindAccountDoesNotExist, KindAlreadyRegistered, KindExternalAccountRequired,
		KindUnsupportedContact, KindUserActionRequired, KindServerInternal:
		return ErrorKind(suffix)
	default:
		return KindUnknown
	}
}

// ProtocolError wraps an RFC 7807 problem document returned by the CA.
type ProtocolError struct {
	Type    string
	ErrKind ErrorKind
	Problem ProblemDetails
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("acme: protocol error %s: %s", e.Type, e.Problem.Detail)
}

// Kind reports the parsed error kind (e.g. "badNonce", "unauthorized").
func (e *ProtocolError) Kind() string { return string(e.ErrKind) }

func newProtocolError(p ProblemDetails) *ProtocolError {
	return &ProtocolError{
		Type:    p.Type,
		ErrKind: parseErrorKind(p.Type),
		Problem: p,
	}
}

// FulfillmentFailedError indicates no configured Fulfiller handled any
// offered challenge type, or a handler returned an error.
type FulfillmentFailedError struct {
	Domain string
	Tried  []string
	Cause  error
}

func (e *FulfillmentFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("acme: fulfillment failed for %s (tried %v): %v", e.Domain, e.Tried, e.Cause)
	}
	return fmt.Sprintf("acme: no fulfiller handled any challenge for %s (tried %v)", e.Domain, e.Tried)
}
func (e *FulfillmentFailedError) Kind() string { return "fulfillmentFailed" }
func (e *FulfillmentFailedError) Unwrap() error { return e.Cause }

// AuthorizationFailedError indicates an authorization finalized as invalid.
type AuthorizationFailedError struct {
	Domain  string
	Problem ProblemDetails
}

func (e *AuthorizationFailedError) Error() string {
	return fmt.Sprintf("acme: authorization for %s became invalid: %s", e.Domain, e.Problem.Detail)
}
func (e *AuthorizationFailedError) Kind() string { return "authorizationFailed" }

// OrderFailedError indicates an order finalized as invalid.
type OrderFailedError struct {
	OrderURL string
	Problem  ProblemDetails
}

func (e *OrderFailedError) Error() string {
	return fmt.Sprintf("acme: order %s became invalid: %s", e.OrderURL, e.Problem.Detail)
}
func (e *OrderFailedError) Kind() string { return "orderFailed" }

// TimeoutError indicates a polling loop exceeded its budget.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("acme: timed out waiting for %s", e.Op) }
func (e *TimeoutError) Kind() string  { return "timeout" }

// StateError indicates the client was used out of sequence, e.g. Sign
// before NewAccount or Restore.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return fmt.Sprintf("acme: invalid client state: %s", e.Reason) }
func (e *StateError) Kind() string  { return "state" }

// CryptoError wraps a key, signature, or CSR construction failure.
type CryptoError struct {
	Op    string
	Cause error
}

func (e *CryptoError) Error() string  { return fmt.Sprintf("acme: %s: %v", e.Op, e.Cause) }
func (e *CryptoError) Kind() string   { return "crypto" }
func (e *CryptoError) Unwrap() error  { return e.Cause }

var (
	_ Error = (*ProtocolError)(nil)
	_ Error = (*FulfillmentFailedError)(nil)
	_ Error = (*AuthorizationFailedError)(nil)
	_ Error = (*OrderFailedError)(nil)
	_ Error = (*TimeoutError)(nil)
	_ Error = (*StateError)(nil)
	_ Error = (*CryptoError)(nil)
)
