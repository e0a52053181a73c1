// SPDX-License-Identifier: LGPL-3.0-or-later

package fulfill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StaticFileFulfiller fulfills http-01 by writing the key authorization to
// <ChallengeRoot>/<token>, the layout expected by a webserver publishing
// /.well-known/acme-challenge/ straight off disk.
type StaticFileFulfiller struct {
	NopFulfiller

	// ChallengeRoot is the directory mapped to /.well-known/acme-challenge/.
	ChallengeRoot string
}

func (f *StaticFileFulfiller) path(ch Challenge) string {
	return filepath.Join(f.ChallengeRoot, ch.Token)
}

// FulfillHTTP01 writes the key authorization file.
func (f *StaticFileFulfiller) FulfillHTTP01(_ context.Context, _ string, ch Challenge) (bool, error) {
	path := f.path(ch)
	if err := os.WriteFile(path, []byte(ch.KeyAuthorization), 0o644); err != nil {
		return false, fmt.Errorf("write challenge file %s: %w", path, err)
	}
	return true, nil
}

// ClearHTTP01 removes the key authorization file.
func (f *StaticFileFulfiller) ClearHTTP01(_ context.Context, _ string, ch Challenge) error {
	path := f.path(ch)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove challenge file %s: %w", path, err)
	}
	return nil
}

var _ Fulfiller = (*StaticFileFulfiller)(nil)
