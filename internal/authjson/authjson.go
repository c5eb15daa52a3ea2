// Package authjson materializes the tool's credentials file from a
// base64-encoded payload.
package authjson

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bpicori/codex-launch/internal/platform"
	"github.com/bpicori/codex-launch/internal/policy"
	"github.com/bpicori/codex-launch/internal/privfs"
)

// FileName is the credentials file written under the tool's home directory.
const FileName = "auth.json"

// Payload errors. All of them are configuration errors.
var (
	ErrEmptyPayload  = errors.New("empty auth payload, expected base64-encoded auth.json contents")
	ErrInvalidBase64 = errors.New("auth payload is not valid base64")
	ErrInvalidJSON   = errors.New("decoded auth.json is not valid JSON")
)

// Request describes one credentials write.
type Request struct {
	Home       string
	Strategy   policy.SafetyStrategy
	RunAsUser  string
	PayloadB64 string
}

// Writer writes credentials files. Local does the staging work as the
// current process; Helper moves and re-owns the file when the tool runs as
// a separate user.
type Writer struct {
	Platform platform.Platform
	Local    *privfs.Direct
	Helper   *privfs.Elevated
	Logger   *slog.Logger
}

// Decode validates the payload and returns the decoded bytes unchanged.
func Decode(payloadB64 string) ([]byte, error) {
	trimmed := bytes.TrimSpace([]byte(payloadB64))
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	decoded, err := decodeBase64(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBase64, err)
	}

	if !json.Valid(decoded) {
		return nil, ErrInvalidJSON
	}
	return decoded, nil
}

// payloadEncodings are tried in order. Padded standard base64 comes first;
// the rest cover `base64 -w0` variants that strip padding or use the URL
// alphabet.
var payloadEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeBase64 returns the first successful decoding of src, or the
// standard encoding's error when none succeeds.
func decodeBase64(src []byte) ([]byte, error) {
	var first error
	for _, enc := range payloadEncodings {
		buf := make([]byte, enc.DecodedLen(len(src)))
		n, err := enc.Decode(buf, src)
		if err == nil {
			return buf[:n], nil
		}
		if first == nil {
			first = err
		}
	}
	return nil, first
}

// Write validates req and writes <Home>/auth.json readable only by its
// owner. It returns the destination path.
func (w *Writer) Write(ctx context.Context, req Request) (string, error) {
	runAsUser, err := req.Strategy.RunAsUser(req.RunAsUser)
	if err != nil {
		return "", err
	}
	if runAsUser != "" {
		if err := platform.CheckElevation(w.Platform); err != nil {
			return "", err
		}
	}

	content, err := Decode(req.PayloadB64)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(req.Home, FileName)
	if runAsUser == "" {
		return dest, w.writeDirect(ctx, req.Home, dest, content)
	}
	return dest, w.writeElevated(ctx, dest, runAsUser, content)
}

func (w *Writer) writeDirect(ctx context.Context, home, dest string, content []byte) error {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return fmt.Errorf("create home %q: %w", home, err)
	}
	if err := w.Local.WriteFile(ctx, dest, content); err != nil {
		return err
	}
	return w.Local.Chmod(ctx, dest, 0o600)
}

// writeElevated stages the file in a private temp dir, then moves it into
// place and fixes owner and mode through the helper, since the current
// process may not be able to write the destination directly.
func (w *Writer) writeElevated(ctx context.Context, dest, owner string, content []byte) (err error) {
	tmpDir, err := w.Local.MkdirTemp(ctx, "codex-auth-")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := w.Local.RemoveAll(ctx, tmpDir); rmErr != nil {
			w.logger().Warn("failed to remove auth staging dir",
				slog.String("dir", tmpDir),
				slog.String("error", rmErr.Error()),
			)
			if err == nil {
				err = rmErr
			}
		}
	}()

	staged := filepath.Join(tmpDir, FileName)
	if err := w.Local.WriteFile(ctx, staged, content); err != nil {
		return err
	}
	if err := w.Helper.Move(ctx, staged, dest); err != nil {
		return fmt.Errorf("move auth.json into place: %w", err)
	}
	if err := w.Helper.Chown(ctx, dest, owner); err != nil {
		return fmt.Errorf("set auth.json owner: %w", err)
	}
	if err := w.Helper.Chmod(ctx, dest, 0o600); err != nil {
		return fmt.Errorf("set auth.json mode: %w", err)
	}
	return nil
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.New(slog.DiscardHandler)
}
