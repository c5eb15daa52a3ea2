package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "debug, info, warn or error")
}

// newLogger returns a slog logger backed by charmbracelet/log writing to w.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, usage(fmt.Errorf("invalid log level %q", level))
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:  lvl,
		Prefix: "codex-launch",
	})
	return slog.New(handler), nil
}
