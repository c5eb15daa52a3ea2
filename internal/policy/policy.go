// Package policy holds the safety strategies and sandbox modes accepted by
// codex-launch, and the single rule that derives the effective sandbox.
package policy

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validation errors. Use errors.Is to check for them.
var (
	ErrUnknownStrategy  = errors.New("unknown safety strategy")
	ErrUnknownSandbox   = errors.New("unknown sandbox mode")
	ErrRunAsUserMissing = errors.New("a run-as user must be specified when using the 'unprivileged-user' safety strategy")
	ErrPathEmpty        = errors.New("path must not be empty")
	ErrPathControlChar  = errors.New("path contains control character")
)

// SafetyStrategy selects whether the tool runs as another principal and
// whether the requested sandbox is honoured.
type SafetyStrategy string

const (
	DropSudo         SafetyStrategy = "drop-sudo"
	ReadOnly         SafetyStrategy = "read-only"
	UnprivilegedUser SafetyStrategy = "unprivileged-user"
	Unsafe           SafetyStrategy = "unsafe"
)

// Strategies lists every accepted safety strategy.
var Strategies = []SafetyStrategy{DropSudo, ReadOnly, UnprivilegedUser, Unsafe}

// ParseSafetyStrategy validates s as a safety strategy.
func ParseSafetyStrategy(s string) (SafetyStrategy, error) {
	for _, strategy := range Strategies {
		if string(strategy) == s {
			return strategy, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownStrategy, s, joinStrategies())
}

// RequiresElevation reports whether the strategy runs the tool and its
// scratch files as a separate principal.
func (s SafetyStrategy) RequiresElevation() bool {
	return s == UnprivilegedUser
}

// RunAsUser returns the elevation principal for this strategy, or "" when
// the strategy does not elevate.
func (s SafetyStrategy) RunAsUser(user string) (string, error) {
	if !s.RequiresElevation() {
		return "", nil
	}
	if strings.TrimSpace(user) == "" {
		return "", ErrRunAsUserMissing
	}
	return user, nil
}

func joinStrategies() string {
	names := make([]string, len(Strategies))
	for i, s := range Strategies {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// SandboxMode is the value passed to the tool's --sandbox flag.
type SandboxMode string

const (
	SandboxReadOnly         SandboxMode = "read-only"
	SandboxWorkspaceWrite   SandboxMode = "workspace-write"
	SandboxDangerFullAccess SandboxMode = "danger-full-access"
)

// ParseSandboxMode validates s as a sandbox mode.
func ParseSandboxMode(s string) (SandboxMode, error) {
	switch mode := SandboxMode(s); mode {
	case SandboxReadOnly, SandboxWorkspaceWrite, SandboxDangerFullAccess:
		return mode, nil
	default:
		return "", fmt.Errorf("%w %q (want read-only, workspace-write or danger-full-access)", ErrUnknownSandbox, s)
	}
}

// EffectiveSandbox returns the sandbox mode that is actually passed to the
// tool. The read-only strategy never grants write access, whatever was
// requested; every other strategy passes the request through.
func EffectiveSandbox(strategy SafetyStrategy, requested SandboxMode) SandboxMode {
	if strategy == ReadOnly {
		return SandboxReadOnly
	}
	return requested
}

// ResolvePath cleans raw and makes it absolute against base. Control
// characters are rejected since the path ends up on a command line.
func ResolvePath(raw, base string) (string, error) {
	if raw == "" {
		return "", ErrPathEmpty
	}

	for _, c := range raw {
		if c < 0x20 || c == 0x7f {
			return "", fmt.Errorf("%w (0x%02x)", ErrPathControlChar, c)
		}
	}

	if !filepath.IsAbs(raw) && base != "" {
		raw = filepath.Join(base, raw)
	}
	return filepath.Clean(raw), nil
}
