// SPDX-License-Identifier: LGPL-3.0-or-later

package acme

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// transientRequestError marks a single HTTP attempt's failure as
// connection-level: a network error reaching the CA, or a 5xx response.
// The single-attempt helpers in this package (signedRequestOnce, the
// nonce pool's fetch, the directory cache's fetch) return one of these
// instead of a plain error so withConnectionRetry can tell a transient
// failure apart from a protocol-level rejection it shouldn't retry.
type transientRequestError struct {
	err error
}

func (e *transientRequestError) Error() string { return e.err.Error() }
func (e *transientRequestError) Unwrap() error { return e.err }

// connectionBackoff retries a transient failure up to 3 times with
// exponential backoff, bounded by ctx.
func connectionBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}

// withConnectionRetry runs op, retrying a transientRequestError per
// connectionBackoff and surfacing exhaustion as a ProtocolError with
// KindConnection. Any other error from op is returned immediately.
func withConnectionRetry(ctx context.Context, op func() error) error {
	retry := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if _, ok := err.(*transientRequestError); ok {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(retry, connectionBackoff(ctx))
	if err == nil {
		return nil
	}
	if terr, ok := err.(*transientRequestError); ok {
		return &ProtocolError{
			Type:    "connection",
			ErrKind: KindConnection,
			Problem: ProblemDetails{Detail: terr.Error()},
		}
	}
	return err
}
