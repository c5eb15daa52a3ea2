//go:build linux || darwin || freebsd || netbsd || openbsd

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

type unixPlatform struct{}

// New returns the Platform implementation for Unix-like systems.
func New() Platform {
	return unixPlatform{}
}

func (unixPlatform) Name() string {
	return runtime.GOOS
}

func (unixPlatform) SupportsElevation() bool {
	return true
}

func (unixPlatform) EffectiveUID() int {
	return unix.Geteuid()
}
