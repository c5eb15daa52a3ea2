package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/bpicori/codex-launch/internal/metrics"
	"github.com/bpicori/codex-launch/internal/platform"
	"github.com/bpicori/codex-launch/internal/publish"
	"github.com/bpicori/codex-launch/pkg/codexexec"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewExecCommand returns the "exec" command, which runs the tool once and
// publishes its final message.
func NewExecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run codex exec with a prompt and publish its final message",
		Long: `Run "codex exec" non-interactively.

Every option can also be given as an INPUT_<NAME> environment variable
(INPUT_PROMPT-FILE, INPUT_SAFETY-STRATEGY, ...) or in a YAML file passed
with --config. Flags and INPUT_* variables override the file.`,
		Example: `  codex-launch exec --prompt "Summarize the failing tests"
  codex-launch exec --prompt-file prompt.md --safety-strategy read-only
  codex-launch exec --prompt-file prompt.md --safety-strategy unprivileged-user --codex-user codex
  codex-launch exec --config run.yaml --show-command`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			return runExec(cmd, v)
		},
	}

	cmd.SetFlagErrorFunc(flagError)

	f := cmd.Flags()
	f.String("prompt", "", "Inline prompt text")
	f.String("prompt-file", "", "File containing the prompt")
	f.String("working-directory", "", "Directory passed to codex --cd (default: current directory)")
	f.String("codex-args", "", "Extra arguments: a JSON array or shell words")
	f.String("output-file", "", "Keep the final message at this path instead of a temporary file")
	f.String("output-schema", "", "Inline JSON schema for the final message")
	f.String("output-schema-file", "", "File containing a JSON schema for the final message")
	f.String("model", "", "Model passed to codex --model")
	f.String("effort", "", "Reasoning effort passed as model_reasoning_effort")
	f.String("safety-strategy", string(defaultStrategy), "drop-sudo, read-only, unprivileged-user or unsafe")
	f.String("codex-user", "", "User to run codex as with the unprivileged-user strategy")
	f.String("sandbox", string(defaultSandbox), "read-only, workspace-write or danger-full-access")
	f.String("pass-through-env", "", "Environment variable names to forward, separated by commas or newlines")
	f.StringSlice("env-file", nil, "Dotenv file providing values for pass-through-env (can be repeated)")
	f.String("codex-home", "", "Exported to codex as CODEX_HOME")
	f.String("codex-path", defaultCodexPath, "codex executable")
	f.String("elevation-command", defaultElevationCommand, "Helper used to act as --codex-user")
	f.Bool("show-command", false, "Print the command line and exit without running codex")
	f.String("metrics-file", "", "Write run metrics in prometheus text format to this file")
	f.String("config", "", "Load options from YAML file")
	addLogFlags(f)

	return cmd
}

// bindFlags binds the command's flags into a fresh viper instance that also
// reads INPUT_<FLAG> variables.
func bindFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func runExec(cmd *cobra.Command, v *viper.Viper) error {
	logger, err := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"))
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	effective, err := resolveRunConfig(v, cwd)
	if err != nil {
		return usage(err)
	}
	req, err := buildRequest(effective)
	if err != nil {
		return usage(err)
	}

	env, err := hostEnvironment(cwd, effective.EnvFiles)
	if err != nil {
		return usage(err)
	}

	o := &codexexec.Orchestrator{
		Platform: platform.New(),
		Publisher: &publish.ActionsOutput{
			File:   env.Vars["GITHUB_OUTPUT"],
			Stdout: cmd.OutOrStdout(),
		},
		Logger: logger,
	}

	start := time.Now()
	res, runErr := o.Run(cmd.Context(), req, env, codexexec.RunIO{
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})

	if path := deref(effective.MetricsFile); path != "" {
		recordMetrics(logger, path, string(req.Strategy), res, runErr, time.Since(start))
	}
	if runErr != nil {
		return runErr
	}

	if req.ShowCommand {
		fmt.Fprintln(cmd.OutOrStdout(), codexexec.FormatCommand(req.CodexHome, res.Command))
	}
	return nil
}

// hostEnvironment snapshots the process environment. Dotenv files only add
// to the forwarding source; the tool's base environment is the process's.
func hostEnvironment(workDir string, envFiles []string) (codexexec.Environment, error) {
	vars := environMap(os.Environ())
	env := codexexec.Environment{Vars: vars, WorkDir: workDir}

	if len(envFiles) == 0 {
		return env, nil
	}
	fromFiles, err := godotenv.Read(envFiles...)
	if err != nil {
		return codexexec.Environment{}, fmt.Errorf("read env file: %w", err)
	}
	source := maps.Clone(vars)
	maps.Copy(source, fromFiles)
	env.Source = source
	return env, nil
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func recordMetrics(logger *slog.Logger, path, strategy string, res codexexec.Result, runErr error, took time.Duration) {
	outcome := "success"
	var e *codexexec.Error
	switch {
	case errors.As(runErr, &e):
		outcome = e.Kind.String()
	case runErr != nil:
		outcome = "error"
	}

	rec := metrics.New()
	rec.Observe(outcome, strategy, res.ExitCode, len(res.Forwarded), took)
	if err := rec.WriteTextfile(path); err != nil {
		logger.Warn("failed to write metrics", slog.String("path", path), slog.String("error", err.Error()))
	}
}
