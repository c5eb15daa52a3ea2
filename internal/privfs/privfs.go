// Package privfs performs the filesystem work around a tool invocation either
// as the current process or delegated to another user through an elevation
// helper. Callers pick an implementation once and use the FS interface.
package privfs

import (
	"context"
	"os"
)

// FS is the set of filesystem operations needed for scratch files.
type FS interface {
	// MkdirTemp creates a fresh directory whose name starts with prefix and
	// returns its path.
	MkdirTemp(ctx context.Context, prefix string) (string, error)
	// WriteFile creates or truncates path with data.
	WriteFile(ctx context.Context, path string, data []byte) error
	// ReadFile returns the full content of path.
	ReadFile(ctx context.Context, path string) (string, error)
	Move(ctx context.Context, src, dst string) error
	Chown(ctx context.Context, path, owner string) error
	Chmod(ctx context.Context, path string, mode os.FileMode) error
	// RemoveAll deletes path and everything below it. A missing path is not an error.
	RemoveAll(ctx context.Context, path string) error
}

// For returns the Elevated implementation acting as runAsUser when one is
// set, and the Direct implementation otherwise.
func For(runAsUser string, direct *Direct, helper *Elevated) FS {
	if runAsUser == "" {
		return direct
	}
	return helper.As(runAsUser)
}
