package cli

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodex dumps its environment to $RECORD_ENV and writes "done" as the
// final message, or exits with $FAKE_EXIT.
const fakeCodex = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  [ "$prev" = "--output-last-message" ] && out="$a"
  prev="$a"
done
env > "$RECORD_ENV"
if [ -n "$FAKE_EXIT" ]; then exit "$FAKE_EXIT"; fi
printf 'done' > "$out"
`

type execFixture struct {
	codex   string
	work    string
	output  string
	envDump string
}

func newExecFixture(t *testing.T) *execFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	dir := t.TempDir()
	f := &execFixture{
		codex:   filepath.Join(dir, "codex"),
		work:    t.TempDir(),
		output:  filepath.Join(dir, "github_output"),
		envDump: filepath.Join(dir, "env"),
	}
	require.NoError(t, os.WriteFile(f.codex, []byte(fakeCodex), 0o755))

	t.Setenv("GITHUB_OUTPUT", f.output)
	t.Setenv("RECORD_ENV", f.envDump)
	t.Setenv("FAKE_EXIT", "")
	return f
}

func (f *execFixture) args(extra ...string) []string {
	return append([]string{"--codex-path", f.codex, "--working-directory", f.work}, extra...)
}

func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestExecCommand_PublishesFinalMessage(t *testing.T) {
	f := newExecFixture(t)
	metricsFile := filepath.Join(t.TempDir(), "codex.prom")

	_, stderr, err := execute(NewExecCommand(), f.args("--prompt", "hello", "--metrics-file", metricsFile)...)
	require.NoError(t, err)

	published, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Regexp(t, `^final-message<<ghadelimiter_[0-9a-f-]+\ndone\nghadelimiter_[0-9a-f-]+\n$`, string(published))
	assert.Contains(t, stderr, "Running: "+f.codex)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `codex_launch_runs_total{outcome="success",strategy="drop-sudo"} 1`)
	assert.Contains(t, string(prom), "codex_launch_exit_code 0")
}

func TestExecCommand_PropagatesToolExitCode(t *testing.T) {
	f := newExecFixture(t)
	t.Setenv("FAKE_EXIT", "3")

	_, _, err := execute(NewExecCommand(), f.args("--prompt", "hello")...)
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))

	published, readErr := os.ReadFile(f.output)
	if readErr == nil {
		assert.Empty(t, published)
	}
}

func TestExecCommand_InvalidPassThroughEnvIsUsageError(t *testing.T) {
	f := newExecFixture(t)

	_, _, err := execute(NewExecCommand(), f.args("--prompt", "hello", "--pass-through-env", "GH_TOKEN,not valid")...)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.NoFileExists(t, f.envDump)
}

func TestExecCommand_MissingUserIsUsageError(t *testing.T) {
	f := newExecFixture(t)
	t.Setenv("INPUT_SAFETY-STRATEGY", "unprivileged-user")

	_, _, err := execute(NewExecCommand(), f.args("--prompt", "hello")...)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.NoFileExists(t, f.envDump)
}

func TestExecCommand_EnvFileOnlyFeedsPassThrough(t *testing.T) {
	f := newExecFixture(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEPLOY_TOKEN=from-file\nUNLISTED=hidden\n"), 0o600))

	_, _, err := execute(NewExecCommand(), f.args(
		"--prompt", "hello",
		"--env-file", envFile,
		"--pass-through-env", "DEPLOY_TOKEN",
		"--codex-home", "/tmp/codex-home",
	)...)
	require.NoError(t, err)

	dump, err := os.ReadFile(f.envDump)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "DEPLOY_TOKEN=from-file\n")
	assert.Contains(t, string(dump), "CODEX_HOME=/tmp/codex-home\n")
	assert.Contains(t, string(dump), "CODEX_INTERNAL_ORIGINATOR_OVERRIDE=codex_github_action\n")
	assert.NotContains(t, string(dump), "UNLISTED")
}

func TestExecCommand_ShowCommand(t *testing.T) {
	f := newExecFixture(t)

	stdout, _, err := execute(NewExecCommand(), f.args("--prompt", "hello", "--show-command", "--safety-strategy", "read-only")...)
	require.NoError(t, err)

	assert.Contains(t, stdout, f.codex+` "exec" "--skip-git-repo-check"`)
	assert.Contains(t, stdout, `"--sandbox" "read-only"`)
	assert.NoFileExists(t, f.envDump)
}

func TestExecCommand_RejectsBadLogLevel(t *testing.T) {
	f := newExecFixture(t)

	_, _, err := execute(NewExecCommand(), f.args("--prompt", "hello", "--log-level", "loud")...)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestWriteAuthJSONCommand_WritesOwnerOnlyFile(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".codex")
	payload := base64.StdEncoding.EncodeToString([]byte(`{"OPENAI_API_KEY":"sk-test"}`))
	t.Setenv(authPayloadEnv, payload)

	_, _, err := execute(NewWriteAuthJSONCommand(), "--codex-home", home)
	require.NoError(t, err)

	path := filepath.Join(home, "auth.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"OPENAI_API_KEY":"sk-test"}`, string(raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAuthJSONCommand_InputOverridesEnvPayload(t *testing.T) {
	home := t.TempDir()
	t.Setenv(authPayloadEnv, "bm90IGpzb24=")
	t.Setenv("INPUT_CODEX-AUTH-JSON-B64", base64.StdEncoding.EncodeToString([]byte(`{}`)))

	_, _, err := execute(NewWriteAuthJSONCommand(), "--codex-home", home)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "auth.json"))
}

func TestWriteAuthJSONCommand_BadPayloadIsUsageError(t *testing.T) {
	home := t.TempDir()
	t.Setenv(authPayloadEnv, "")

	for _, payload := range []string{"", "%%%", base64.StdEncoding.EncodeToString([]byte("not json"))} {
		_, _, err := execute(NewWriteAuthJSONCommand(), "--codex-home", home, "--codex-auth-json-b64", payload)
		require.Error(t, err, "payload %q", payload)
		assert.Equal(t, ExitUsage, ExitCode(err), "payload %q", payload)
	}
	assert.NoFileExists(t, filepath.Join(home, "auth.json"))
}

func TestWriteAuthJSONCommand_UnprivilegedUserNeedsUser(t *testing.T) {
	_, _, err := execute(NewWriteAuthJSONCommand(),
		"--codex-home", t.TempDir(),
		"--codex-auth-json-b64", base64.StdEncoding.EncodeToString([]byte(`{}`)),
		"--safety-strategy", "unprivileged-user",
	)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestExecCommand_UnknownFlagIsUsageError(t *testing.T) {
	_, _, err := execute(NewExecCommand(), "--no-such-flag")
	assert.Equal(t, ExitUsage, ExitCode(err))
}
