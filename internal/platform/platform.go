// Package platform reports what the host operating system allows codex-launch
// to do, chiefly whether the tool may be run as a separate principal.
package platform

import (
	"errors"
	"fmt"
)

// ErrElevationUnsupported is returned when a run-as user is configured on an
// operating system without a usable user-separation model.
var ErrElevationUnsupported = errors.New("running as a separate user is not supported on this platform")

// Platform abstracts OS-specific process identity.
type Platform interface {
	// Name is the GOOS-style name of the platform.
	Name() string

	// SupportsElevation reports whether commands can be delegated to another
	// principal through an elevation helper such as sudo.
	SupportsElevation() bool

	// EffectiveUID returns the effective user id of this process, or -1 where
	// the platform has no numeric user ids.
	EffectiveUID() int
}

// CheckElevation returns ErrElevationUnsupported unless p can delegate to
// another principal.
func CheckElevation(p Platform) error {
	if p.SupportsElevation() {
		return nil
	}
	return fmt.Errorf("%w (%s)", ErrElevationUnsupported, p.Name())
}
