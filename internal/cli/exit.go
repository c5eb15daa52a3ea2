package cli

import (
	"errors"

	"github.com/bpicori/codex-launch/internal/authjson"
	"github.com/bpicori/codex-launch/internal/platform"
	"github.com/bpicori/codex-launch/internal/policy"
	"github.com/bpicori/codex-launch/pkg/codexexec"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks a failure caused by invalid flags or configuration.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usage(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err: err}
}

func flagError(_ *cobra.Command, err error) error {
	return usage(err)
}

// ExitCode maps an error returned by a command to the process exit code:
// 2 for usage and configuration problems, the tool's own exit code when it
// failed, and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ue *usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}

	var e *codexexec.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case codexexec.KindConfig:
			return ExitUsage
		case codexexec.KindSubprocess:
			if e.ExitCode > 0 {
				return e.ExitCode
			}
		}
		return ExitFailure
	}

	for _, target := range []error{
		policy.ErrUnknownStrategy,
		policy.ErrRunAsUserMissing,
		platform.ErrElevationUnsupported,
		authjson.ErrEmptyPayload,
		authjson.ErrInvalidBase64,
		authjson.ErrInvalidJSON,
	} {
		if errors.Is(err, target) {
			return ExitUsage
		}
	}
	return ExitFailure
}
