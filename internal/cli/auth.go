package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bpicori/codex-launch/internal/authjson"
	"github.com/bpicori/codex-launch/internal/platform"
	"github.com/bpicori/codex-launch/internal/policy"
	"github.com/bpicori/codex-launch/internal/privfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// authPayloadEnv is read when neither the flag nor its INPUT_ variable is set.
const authPayloadEnv = "CODEX_AUTH_JSON_B64"

// NewWriteAuthJSONCommand returns the "write-auth-json" command, which
// writes the tool's credentials file from a base64 payload.
func NewWriteAuthJSONCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write-auth-json",
		Short: "Write <codex-home>/auth.json from a base64-encoded payload",
		Example: `  CODEX_AUTH_JSON_B64=$(base64 -w0 auth.json) codex-launch write-auth-json --codex-home ~/.codex
  codex-launch write-auth-json --codex-home /home/codex/.codex --safety-strategy unprivileged-user --codex-user codex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			return runWriteAuthJSON(cmd, v)
		},
	}

	cmd.SetFlagErrorFunc(flagError)

	f := cmd.Flags()
	f.String("codex-home", "", "Directory to write auth.json into (default: $CODEX_HOME or ~/.codex)")
	f.String("codex-auth-json-b64", "", "Base64-encoded auth.json contents (default: $"+authPayloadEnv+")")
	f.String("safety-strategy", string(defaultStrategy), "drop-sudo, read-only, unprivileged-user or unsafe")
	f.String("codex-user", "", "Owner of auth.json with the unprivileged-user strategy")
	f.String("elevation-command", defaultElevationCommand, "Helper used to hand the file to --codex-user")
	addLogFlags(f)

	return cmd
}

func runWriteAuthJSON(cmd *cobra.Command, v *viper.Viper) error {
	logger, err := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"))
	if err != nil {
		return err
	}

	strategy, err := policy.ParseSafetyStrategy(v.GetString("safety-strategy"))
	if err != nil {
		return usage(err)
	}

	home, err := codexHome(v.GetString("codex-home"))
	if err != nil {
		return usage(err)
	}

	payload := v.GetString("codex-auth-json-b64")
	if payload == "" {
		payload = os.Getenv(authPayloadEnv)
	}

	w := &authjson.Writer{
		Platform: platform.New(),
		Local:    &privfs.Direct{},
		Helper: &privfs.Elevated{
			Runner:  privfs.ExecRunner{Env: os.Environ()},
			Command: v.GetString("elevation-command"),
		},
		Logger: logger,
	}

	dest, err := w.Write(cmd.Context(), authjson.Request{
		Home:       home,
		Strategy:   strategy,
		RunAsUser:  v.GetString("codex-user"),
		PayloadB64: payload,
	})
	if err != nil {
		return err
	}

	logger.Info("Wrote " + dest)
	return nil
}

// codexHome resolves the credentials directory: the explicit value, then
// $CODEX_HOME, then ~/.codex.
func codexHome(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("CODEX_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve codex home: %w", err)
	}
	if home == "" {
		return "", errors.New("resolve codex home: no home directory")
	}
	return filepath.Join(home, ".codex"), nil
}
