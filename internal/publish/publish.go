// Package publish hands invocation results to the automation platform.
package publish

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// FinalMessageKey is the only key codex-launch publishes.
const FinalMessageKey = "final-message"

// ErrDelimiterCollision is returned when a key or value contains the
// heredoc delimiter chosen for it.
var ErrDelimiterCollision = errors.New("output contains the heredoc delimiter")

// Publisher is a key/value result sink.
type Publisher interface {
	Publish(key, value string) error
}

// ActionsOutput publishes GitHub Actions step outputs. With File set (the
// value of GITHUB_OUTPUT) entries are appended to that file in heredoc form;
// otherwise the legacy set-output workflow command is written to Stdout.
type ActionsOutput struct {
	File   string
	Stdout io.Writer

	// NewDelimiter returns a heredoc delimiter. Defaults to a random one.
	NewDelimiter func() string
}

func (a *ActionsOutput) Publish(key, value string) error {
	if a.File == "" {
		return a.command(key, value)
	}

	delim := a.delimiter()
	if strings.Contains(key, delim) || strings.Contains(value, delim) {
		return fmt.Errorf("%w %q", ErrDelimiterCollision, delim)
	}

	f, err := os.OpenFile(a.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	entry := key + "<<" + delim + "\n" + value + "\n" + delim + "\n"
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

func (a *ActionsOutput) delimiter() string {
	if a.NewDelimiter != nil {
		return a.NewDelimiter()
	}
	return "ghadelimiter_" + uuid.NewString()
}

func (a *ActionsOutput) command(key, value string) error {
	w := a.Stdout
	if w == nil {
		w = os.Stdout
	}
	if _, err := fmt.Fprintf(w, "\n::set-output name=%s::%s\n", escapeProperty(key), escapeData(value)); err != nil {
		return fmt.Errorf("write output %q: %w", key, err)
	}
	return nil
}

func escapeData(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

func escapeProperty(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C").Replace(s)
}
