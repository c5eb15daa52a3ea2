package main

import (
	"fmt"
	"os"

	"github.com/bpicori/codex-launch/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codex-launch",
	Short: "codex-launch - run codex exec safely from automation pipelines",
	Long: `codex-launch runs "codex exec" for CI jobs: it picks the sandbox for the
chosen safety strategy, can run codex as a separate unprivileged user,
forwards only the environment variables it is asked to, and publishes the
final message as the "final-message" step output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(cli.NewExecCommand(), cli.NewWriteAuthJSONCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
