// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// State is the minimal document needed to resume a Client without
// re-running NewAccount: the directory URL, the account's RSA key, and
// (once bound) the account URL. Unknown top-level fields present in a
// document being parsed are preserved verbatim across a Serialize round
// trip, rather than silently dropped.
type State struct {
	Directory  string
	Key        *rsa.PrivateKey
	AccountURL string

	unknown map[string]json.RawMessage
}

// stateKey is the JSON shape of State.Key: an RSA private JWK, base64url
// (no padding) big-endian integers, without a "kty" field (RSA is implied
// by the presence of "d"/"p"/"q" in this module's documents).
type stateKey struct {
	N  string `json:"n"`
	E  string `json:"e"`
	D  string `json:"d"`
	P  string `json:"p"`
	Q  string `json:"q"`
	DP string `json:"dp"`
	DQ string `json:"dq"`
	QI string `json:"qi"`
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

func encodeStateKey(key *rsa.PrivateKey) stateKey {
	key.Precompute()
	return stateKey{
		N:  b64(key.N.Bytes()),
		E:  b64(big.NewInt(int64(key.E)).Bytes()),
		D:  b64(key.D.Bytes()),
		P:  b64(key.Primes[0].Bytes()),
		Q:  b64(key.Primes[1].Bytes()),
		DP: b64(key.Precomputed.Dp.Bytes()),
		DQ: b64(key.Precomputed.Dq.Bytes()),
		QI: b64(key.Precomputed.Qinv.Bytes()),
	}
}

func decodeStateKey(k stateKey) (*rsa.PrivateKey, error) {
	n, err := decodeBig(k.N, "n")
	if err != nil {
		return nil, err
	}
	e, err := decodeBig(k.E, "e")
	if err != nil {
		return nil, err
	}
	d, err := decodeBig(k.D, "d")
	if err != nil {
		return nil, err
	}
	p, err := decodeBig(k.P, "p")
	if err != nil {
		return nil, err
	}
	q, err := decodeBig(k.Q, "q")
	if err != nil {
		return nil, err
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("validate restored key: %w", err)
	}
	key.Precompute()
	return key, nil
}

func decodeBig(s, field string) (*big.Int, error) {
	raw, err := unb64(s)
	if err != nil {
		return nil, fmt.Errorf("decode state key field %q: %w", field, err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// wireState is the JSON document shape State serializes to/from.
type wireState struct {
	Directory  string   `json:"directory"`
	Key        stateKey `json:"key"`
	AccountURL string   `json:"account_url,omitempty"`
}

// Serialize renders the state as the canonical JSON document, with any
// unknown fields captured at Parse time merged back in.
func (s *State) Serialize() ([]byte, error) {
	if s.Key == nil {
		return nil, &StateError{Reason: "cannot serialize state without a key"}
	}

	ws := wireState{
		Directory:  s.Directory,
		Key:        encodeStateKey(s.Key),
		AccountURL: s.AccountURL,
	}

	base, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("acme: encode state: %w", err)
	}
	if len(s.unknown) == 0 {
		return base, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("acme: encode state: %w", err)
	}
	for k, v := range s.unknown {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ParseState decodes a serialized State document, capturing any top-level
// fields this module doesn't recognize so a later Serialize round trip
// preserves them.
func ParseState(data []byte) (*State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("acme: decode state: %w", err)
	}

	var ws wireState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("acme: decode state: %w", err)
	}

	key, err := decodeStateKey(ws.Key)
	if err != nil {
		return nil, &CryptoError{Op: "decode state key", Cause: err}
	}

	unknown := map[string]json.RawMessage{}
	for k, v := range raw {
		switch k {
		case "directory", "key", "account_url":
			continue
		default:
			unknown[k] = v
		}
	}

	return &State{
		Directory:  ws.Directory,
		Key:        key,
		AccountURL: ws.AccountURL,
		unknown:    unknown,
	}, nil
}

// Serialize captures the Client's current directory, account key, and
// account URL (if bound) as a State.
func (c *Client) Serialize() (*State, error) {
	return &State{
		Directory:  c.directoryURL,
		Key:        c.accountKey,
		AccountURL: c.accountURL,
	}, nil
}

// Restore reconstructs a Client from a previously serialized State without
// contacting the CA: like NewClient, it defers the directory fetch until
// the returned Client's first actual use. No account registration call is
// made.
func Restore(ctx context.Context, s *State, opts ...ClientOption) (*Client, error) {
	if s.Key == nil {
		return nil, &StateError{Reason: "cannot restore from state without a key"}
	}

	allOpts := append([]ClientOption{WithAccountKey(s.Key)}, opts...)
	if s.AccountURL != "" {
		allOpts = append(allOpts, WithAccountURL(s.AccountURL))
	}

	return NewClient(ctx, s.Directory, allOpts...)
}
