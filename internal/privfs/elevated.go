package privfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ErrHelperFailed wraps every failure of an elevation helper subprocess,
// whether it could not be started or exited non-zero.
var ErrHelperFailed = errors.New("elevation helper failed")

// Runner runs a helper command to completion and returns its standard output.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, argv ...string) (string, error)
}

// ExecRunner runs helper commands as subprocesses.
type ExecRunner struct {
	// Env is the helper environment in KEY=VALUE form.
	Env []string
	// Dir is the helper working directory.
	Dir string
}

// Run starts argv, feeds it stdin when non-nil and waits for it. Standard
// error is captured and included in the returned error.
func (r ExecRunner) Run(ctx context.Context, stdin io.Reader, argv ...string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("%w: empty command", ErrHelperFailed)
	}

	path, err := LookPath(argv[0], pathFromEnviron(r.Env))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHelperFailed, err)
	}

	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Env = r.Env
	cmd.Dir = r.Dir
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%w: %s: %w: %s", ErrHelperFailed, strings.Join(argv, " "), err, msg)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrHelperFailed, strings.Join(argv, " "), err)
	}
	return stdout.String(), nil
}

// LookPath resolves a bare command name against pathEnv, a PATH value
// belonging to the child's environment rather than this process's. Names
// containing a separator are returned unchanged. Empty and relative PATH
// entries are skipped.
func LookPath(name, pathEnv string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name, nil
	}
	if runtime.GOOS == "windows" {
		return exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if !filepath.IsAbs(dir) {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return candidate, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// pathFromEnviron returns the last PATH entry of environ, falling back to
// this process's PATH when environ sets none.
func pathFromEnviron(environ []string) string {
	path, found := "", false
	for _, kv := range environ {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path, found = v, true
		}
	}
	if !found {
		return os.Getenv("PATH")
	}
	return path
}

// Elevated delegates every operation to Command (normally sudo). With User
// set the operations run as that user (sudo -u User <verb> ...), otherwise
// as the helper's default principal.
type Elevated struct {
	Runner  Runner
	Command string
	User    string
}

// As returns a copy of e acting as user.
func (e *Elevated) As(user string) *Elevated {
	c := *e
	c.User = user
	return &c
}

func (e *Elevated) argv(verb ...string) []string {
	command := e.Command
	if command == "" {
		command = "sudo"
	}
	argv := []string{command}
	if e.User != "" {
		argv = append(argv, "-u", e.User)
	}
	return append(argv, verb...)
}

func (e *Elevated) run(ctx context.Context, stdin io.Reader, verb ...string) (string, error) {
	return e.Runner.Run(ctx, stdin, e.argv(verb...)...)
}

func (e *Elevated) MkdirTemp(ctx context.Context, prefix string) (string, error) {
	out, err := e.run(ctx, nil, "mktemp", "-d", "-t", prefix+".XXXXXX")
	if err != nil {
		return "", err
	}
	dir := strings.TrimRight(out, " \t\r\n")
	if dir == "" {
		return "", fmt.Errorf("%w: mktemp printed no directory", ErrHelperFailed)
	}
	return dir, nil
}

// WriteFile streams data through tee so the file is created by the helper's
// principal.
func (e *Elevated) WriteFile(ctx context.Context, path string, data []byte) error {
	_, err := e.run(ctx, bytes.NewReader(data), "tee", path)
	return err
}

func (e *Elevated) ReadFile(ctx context.Context, path string) (string, error) {
	return e.run(ctx, nil, "cat", path)
}

func (e *Elevated) Move(ctx context.Context, src, dst string) error {
	_, err := e.run(ctx, nil, "mv", src, dst)
	return err
}

func (e *Elevated) Chown(ctx context.Context, path, owner string) error {
	_, err := e.run(ctx, nil, "chown", owner, path)
	return err
}

func (e *Elevated) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	_, err := e.run(ctx, nil, "chmod", strconv.FormatUint(uint64(mode.Perm()), 8), path)
	return err
}

func (e *Elevated) RemoveAll(ctx context.Context, path string) error {
	_, err := e.run(ctx, nil, "rm", "-rf", path)
	return err
}
