package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bpicori/codex-launch/internal/envfwd"
	"github.com/bpicori/codex-launch/internal/policy"
	"github.com/bpicori/codex-launch/pkg/codexexec"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"
)

// envPrefix matches the variables GitHub Actions sets for step inputs, e.g.
// INPUT_PROMPT-FILE.
const envPrefix = "INPUT"

const (
	defaultStrategy         = policy.DropSudo
	defaultSandbox          = policy.SandboxWorkspaceWrite
	defaultCodexPath        = "codex"
	defaultElevationCommand = "sudo"
)

// runConfigProfile defines exec options that can be loaded from file and
// then overridden by flags or INPUT_* variables.
type runConfigProfile struct {
	Prompt           *string  `yaml:"prompt"`
	PromptFile       *string  `yaml:"prompt_file"`
	WorkingDirectory *string  `yaml:"working_directory"`
	CodexArgs        []string `yaml:"codex_args"`
	OutputFile       *string  `yaml:"output_file"`
	OutputSchema     *string  `yaml:"output_schema"`
	OutputSchemaFile *string  `yaml:"output_schema_file"`
	Model            *string  `yaml:"model"`
	Effort           *string  `yaml:"effort"`
	SafetyStrategy   *string  `yaml:"safety_strategy"`
	CodexUser        *string  `yaml:"codex_user"`
	Sandbox          *string  `yaml:"sandbox"`
	PassThroughEnv   []string `yaml:"pass_through_env"`
	EnvFiles         []string `yaml:"env_files"`
	CodexHome        *string  `yaml:"codex_home"`
	CodexPath        *string  `yaml:"codex_path"`
	ElevationCommand *string  `yaml:"elevation_command"`
	ShowCommand      *bool    `yaml:"show_command"`
	MetricsFile      *string  `yaml:"metrics_file"`
}

func resolveRunConfig(v *viper.Viper, workDir string) (*runConfigProfile, error) {
	effective := &runConfigProfile{}

	if path := v.GetString("config"); path != "" {
		fromFile, err := loadRunConfigFile(path)
		if err != nil {
			return nil, err
		}
		mergeRunConfigProfile(effective, fromFile)
	}

	overrides, err := viperRunConfigOverrides(v)
	if err != nil {
		return nil, err
	}
	mergeRunConfigProfile(effective, overrides)
	applyRunConfigDefaults(effective, workDir)
	return effective, nil
}

func loadRunConfigFile(path string) (*runConfigProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	var fileCfg runConfigProfile
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return &fileCfg, nil
}

// viperRunConfigOverrides collects the options given as flags or INPUT_*
// variables. Flag defaults do not count as overrides.
func viperRunConfigOverrides(v *viper.Viper) (*runConfigProfile, error) {
	str := func(key string) *string {
		if !v.IsSet(key) {
			return nil
		}
		return stringPtr(v.GetString(key))
	}

	cfg := &runConfigProfile{
		Prompt:           str("prompt"),
		PromptFile:       str("prompt-file"),
		WorkingDirectory: str("working-directory"),
		OutputFile:       str("output-file"),
		OutputSchema:     str("output-schema"),
		OutputSchemaFile: str("output-schema-file"),
		Model:            str("model"),
		Effort:           str("effort"),
		SafetyStrategy:   str("safety-strategy"),
		CodexUser:        str("codex-user"),
		Sandbox:          str("sandbox"),
		CodexHome:        str("codex-home"),
		CodexPath:        str("codex-path"),
		ElevationCommand: str("elevation-command"),
		MetricsFile:      str("metrics-file"),
	}

	if v.IsSet("codex-args") {
		args, err := parseExtraArgs(v.GetString("codex-args"))
		if err != nil {
			return nil, err
		}
		// An explicit empty value still replaces the file's list.
		cfg.CodexArgs = append([]string{}, args...)
	}
	if v.IsSet("pass-through-env") {
		cfg.PassThroughEnv = []string{v.GetString("pass-through-env")}
	}
	if v.IsSet("env-file") {
		cfg.EnvFiles = v.GetStringSlice("env-file")
	}
	if v.IsSet("show-command") {
		cfg.ShowCommand = boolPtr(v.GetBool("show-command"))
	}
	return cfg, nil
}

func mergeRunConfigProfile(dst *runConfigProfile, src *runConfigProfile) {
	if dst == nil || src == nil {
		return
	}

	dst.PassThroughEnv = append(dst.PassThroughEnv, src.PassThroughEnv...)
	dst.EnvFiles = append(dst.EnvFiles, src.EnvFiles...)

	if src.CodexArgs != nil {
		dst.CodexArgs = append([]string{}, src.CodexArgs...)
	}

	for _, f := range []struct{ dst, src **string }{
		{&dst.Prompt, &src.Prompt},
		{&dst.PromptFile, &src.PromptFile},
		{&dst.WorkingDirectory, &src.WorkingDirectory},
		{&dst.OutputFile, &src.OutputFile},
		{&dst.OutputSchema, &src.OutputSchema},
		{&dst.OutputSchemaFile, &src.OutputSchemaFile},
		{&dst.Model, &src.Model},
		{&dst.Effort, &src.Effort},
		{&dst.SafetyStrategy, &src.SafetyStrategy},
		{&dst.CodexUser, &src.CodexUser},
		{&dst.Sandbox, &src.Sandbox},
		{&dst.CodexHome, &src.CodexHome},
		{&dst.CodexPath, &src.CodexPath},
		{&dst.ElevationCommand, &src.ElevationCommand},
		{&dst.MetricsFile, &src.MetricsFile},
	} {
		if *f.src != nil {
			*f.dst = stringPtr(**f.src)
		}
	}

	if src.ShowCommand != nil {
		dst.ShowCommand = boolPtr(*src.ShowCommand)
	}
}

func applyRunConfigDefaults(c *runConfigProfile, workDir string) {
	setDefault := func(p **string, v string) {
		if *p == nil || **p == "" {
			*p = stringPtr(v)
		}
	}
	setDefault(&c.SafetyStrategy, string(defaultStrategy))
	setDefault(&c.Sandbox, string(defaultSandbox))
	setDefault(&c.WorkingDirectory, workDir)
	setDefault(&c.CodexPath, defaultCodexPath)
	setDefault(&c.ElevationCommand, defaultElevationCommand)
}

// parseExtraArgs splits the raw codex-args value. A value starting with '['
// is a JSON array of strings; anything else is split into shell words with
// variable references left as written.
func parseExtraArgs(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var args []string
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return nil, fmt.Errorf("parse codex-args as JSON array: %w", err)
		}
		return args, nil
	}

	args, err := shell.Fields(trimmed, func(name string) string { return "$" + name })
	if err != nil {
		return nil, fmt.Errorf("parse codex-args: %w", err)
	}
	return args, nil
}

func boolPtr(v bool) *bool {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// buildRequest constructs an execution request from resolved options.
func buildRequest(c *runConfigProfile) (codexexec.ExecutionRequest, error) {
	var errs []error

	req := codexexec.ExecutionRequest{
		Prompt: codexexec.PromptSource{
			Path: deref(c.PromptFile),
			Text: deref(c.Prompt),
		},
		WorkDir:          deref(c.WorkingDirectory),
		ExtraArgs:        append([]string{}, c.CodexArgs...),
		OutputFile:       deref(c.OutputFile),
		Model:            deref(c.Model),
		Effort:           deref(c.Effort),
		Strategy:         policy.SafetyStrategy(deref(c.SafetyStrategy)),
		RunAsUser:        deref(c.CodexUser),
		Sandbox:          policy.SandboxMode(deref(c.Sandbox)),
		CodexHome:        deref(c.CodexHome),
		CodexPath:        deref(c.CodexPath),
		ElevationCommand: deref(c.ElevationCommand),
	}
	if c.ShowCommand != nil {
		req.ShowCommand = *c.ShowCommand
	}

	if req.Prompt.Path != "" && req.Prompt.Text != "" {
		errs = append(errs, errors.New("only one of prompt or prompt-file may be specified"))
	}

	schemaFile, schemaInline := deref(c.OutputSchemaFile), deref(c.OutputSchema)
	switch {
	case schemaFile != "" && schemaInline != "":
		errs = append(errs, errors.New("only one of output-schema or output-schema-file may be specified"))
	case schemaFile != "":
		req.OutputSchema = &codexexec.SchemaSource{Path: schemaFile}
	case schemaInline != "":
		req.OutputSchema = &codexexec.SchemaSource{Inline: schemaInline}
	}

	parsed := envfwd.ParseNames(strings.Join(c.PassThroughEnv, "\n"))
	if len(parsed.Invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid pass-through-env names: %s", strings.Join(parsed.Invalid, ", ")))
	}
	req.PassThroughEnv = parsed.Names

	if err := errors.Join(errs...); err != nil {
		return codexexec.ExecutionRequest{}, err
	}
	return req, nil
}
