package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bpicori/codex-launch/internal/policy"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRunConfigFile_ParsesYAML(t *testing.T) {
	cfgPath := writeTempRunConfig(t, `
prompt_file: .github/prompts/review.md
safety_strategy: unprivileged-user
codex_user: codex
codex_args:
  - --full-auto
pass_through_env:
  - GH_TOKEN
show_command: true
`)

	cfg, err := loadRunConfigFile(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, ".github/prompts/review.md", deref(cfg.PromptFile))
	assert.Equal(t, "unprivileged-user", deref(cfg.SafetyStrategy))
	assert.Equal(t, "codex", deref(cfg.CodexUser))
	assert.Equal(t, []string{"--full-auto"}, cfg.CodexArgs)
	assert.Equal(t, []string{"GH_TOKEN"}, cfg.PassThroughEnv)
	require.NotNil(t, cfg.ShowCommand)
	assert.True(t, *cfg.ShowCommand)
	assert.Nil(t, cfg.Model)
}

func TestLoadRunConfigFile_InvalidYAML(t *testing.T) {
	cfgPath := writeTempRunConfig(t, `: not-valid`)
	_, err := loadRunConfigFile(cfgPath)
	assert.Error(t, err)
}

func TestResolveRunConfig_FlagsOverrideFile(t *testing.T) {
	cfgPath := writeTempRunConfig(t, `
model: from-file
safety_strategy: read-only
codex_args: [--from-file]
pass_through_env: [GH_TOKEN]
`)
	v := parsedViper(t, "--config", cfgPath, "--model", "from-flag", "--pass-through-env", "NPM_TOKEN")

	cfg, err := resolveRunConfig(v, "/work")
	require.NoError(t, err)

	assert.Equal(t, "from-flag", deref(cfg.Model))
	assert.Equal(t, "read-only", deref(cfg.SafetyStrategy))
	assert.Equal(t, []string{"--from-file"}, cfg.CodexArgs)
	assert.Equal(t, []string{"GH_TOKEN", "NPM_TOKEN"}, cfg.PassThroughEnv)
	assert.Equal(t, "/work", deref(cfg.WorkingDirectory))
}

func TestResolveRunConfig_FlagDefaultsDoNotOverrideFile(t *testing.T) {
	cfgPath := writeTempRunConfig(t, `
sandbox: read-only
codex_path: /opt/codex/bin/codex
`)
	v := parsedViper(t, "--config", cfgPath)

	cfg, err := resolveRunConfig(v, "/work")
	require.NoError(t, err)

	assert.Equal(t, "read-only", deref(cfg.Sandbox))
	assert.Equal(t, "/opt/codex/bin/codex", deref(cfg.CodexPath))
	assert.Equal(t, string(policy.DropSudo), deref(cfg.SafetyStrategy))
	assert.Equal(t, "sudo", deref(cfg.ElevationCommand))
}

func TestResolveRunConfig_ActionInputsOverrideFile(t *testing.T) {
	cfgPath := writeTempRunConfig(t, `
safety_strategy: read-only
model: from-file
`)
	t.Setenv("INPUT_SAFETY-STRATEGY", "unsafe")
	t.Setenv("INPUT_CODEX-ARGS", `["--json"]`)
	t.Setenv("INPUT_MODEL", "")
	v := parsedViper(t, "--config", cfgPath)

	cfg, err := resolveRunConfig(v, "/work")
	require.NoError(t, err)

	assert.Equal(t, "unsafe", deref(cfg.SafetyStrategy))
	assert.Equal(t, []string{"--json"}, cfg.CodexArgs)
	assert.Equal(t, "from-file", deref(cfg.Model), "empty inputs are ignored")
}

func TestResolveRunConfig_MissingFile(t *testing.T) {
	v := parsedViper(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := resolveRunConfig(v, "/work")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseExtraArgs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "  ", nil},
		{"json", `["--config", "a b"]`, []string{"--config", "a b"}},
		{"shell words", `--full-auto --config 'model="o3"'`, []string{"--full-auto", "--config", `model="o3"`}},
		{"variables stay literal", `--add-dir $HOME/src`, []string{"--add-dir", "$HOME/src"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExtraArgs(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseExtraArgs(`[--not-json`)
	assert.ErrorContains(t, err, "JSON array")

	_, err = parseExtraArgs(`--unterminated 'quote`)
	assert.Error(t, err)
}

func TestBuildRequest(t *testing.T) {
	cfg := &runConfigProfile{
		Prompt:         stringPtr("review"),
		OutputSchema:   stringPtr(`{"type":"object"}`),
		SafetyStrategy: stringPtr("unprivileged-user"),
		CodexUser:      stringPtr("codex"),
		Sandbox:        stringPtr("workspace-write"),
		PassThroughEnv: []string{"GH_TOKEN,NPM_TOKEN", "GH_TOKEN"},
		CodexArgs:      []string{"--full-auto"},
		ShowCommand:    boolPtr(true),
	}

	req, err := buildRequest(cfg)
	require.NoError(t, err)

	assert.Equal(t, "review", req.Prompt.Text)
	require.NotNil(t, req.OutputSchema)
	assert.Equal(t, `{"type":"object"}`, req.OutputSchema.Inline)
	assert.Equal(t, policy.UnprivilegedUser, req.Strategy)
	assert.Equal(t, "codex", req.RunAsUser)
	assert.Equal(t, []string{"GH_TOKEN", "NPM_TOKEN"}, req.PassThroughEnv)
	assert.Equal(t, []string{"--full-auto"}, req.ExtraArgs)
	assert.True(t, req.ShowCommand)
}

func TestBuildRequest_RejectsConflictsAndBadNames(t *testing.T) {
	cfg := &runConfigProfile{
		Prompt:           stringPtr("inline"),
		PromptFile:       stringPtr("prompt.md"),
		OutputSchema:     stringPtr("{}"),
		OutputSchemaFile: stringPtr("schema.json"),
		PassThroughEnv:   []string{"GOOD,bad-name"},
	}

	_, err := buildRequest(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "prompt or prompt-file")
	assert.ErrorContains(t, err, "output-schema or output-schema-file")
	assert.ErrorContains(t, err, "bad-name")
}

func parsedViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	cmd := NewExecCommand()
	require.NoError(t, cmd.Flags().Parse(args))
	v, err := bindFlags(cmd)
	require.NoError(t, err)
	return v
}

func writeTempRunConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "run-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
