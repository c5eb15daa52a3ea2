//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package platform

import "runtime"

type otherPlatform struct{}

// New returns a Platform that runs everything as the current principal.
func New() Platform {
	return otherPlatform{}
}

func (otherPlatform) Name() string {
	return runtime.GOOS
}

func (otherPlatform) SupportsElevation() bool {
	return false
}

func (otherPlatform) EffectiveUID() int {
	return -1
}
