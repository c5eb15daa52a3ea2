package privfs

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// Direct performs every operation as the current process.
type Direct struct {
	// TempDir is the parent of directories made by MkdirTemp. Empty means
	// the system default.
	TempDir string
}

func (d *Direct) MkdirTemp(_ context.Context, prefix string) (string, error) {
	dir, err := os.MkdirTemp(d.TempDir, prefix)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}

func (d *Direct) WriteFile(_ context.Context, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

func (d *Direct) ReadFile(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return string(raw), nil
}

func (d *Direct) Move(_ context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %q to %q: %w", src, dst, err)
	}
	return nil
}

func (d *Direct) Chown(_ context.Context, path, owner string) error {
	u, err := user.Lookup(owner)
	if err != nil {
		return fmt.Errorf("look up user %q: %w", owner, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("user %q has non-numeric uid %q", owner, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("user %q has non-numeric gid %q", owner, u.Gid)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("chown %q: %w", path, err)
	}
	return nil
}

func (d *Direct) Chmod(_ context.Context, path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %q: %w", path, err)
	}
	return nil
}

func (d *Direct) RemoveAll(_ context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}
