package codexexec

import (
	"io"

	"github.com/bpicori/codex-launch/internal/capture"
	"github.com/bpicori/codex-launch/internal/policy"
)

// PromptSource is either inline prompt text or a file holding it. Path wins
// when both are set.
type PromptSource struct {
	Path string
	Text string
}

// SchemaSource is the optional output schema: a path to an existing file or
// inline content.
type SchemaSource = capture.SchemaSource

// ExecutionRequest describes one tool invocation. It is not modified by Run.
type ExecutionRequest struct {
	Prompt PromptSource

	// WorkDir is passed to the tool's --cd flag. Empty means Environment.WorkDir.
	WorkDir   string
	ExtraArgs []string

	// OutputFile is an explicit destination for the final message. When
	// empty a scratch file is used and removed afterwards.
	OutputFile   string
	OutputSchema *SchemaSource

	Model  string
	Effort string

	Strategy  policy.SafetyStrategy
	RunAsUser string
	Sandbox   policy.SandboxMode

	// PassThroughEnv names variables copied from the environment source into
	// the tool's environment. Names must already be validated and unique.
	PassThroughEnv []string

	// CodexHome, when set, is exported to the tool as CODEX_HOME.
	CodexHome string

	// CodexPath is the tool executable. Defaults to "codex".
	CodexPath string
	// ElevationCommand is the helper used to act as RunAsUser. Defaults to "sudo".
	ElevationCommand string

	// ShowCommand resolves everything and reports the command line without
	// running the tool. Scratch resources are still created and released.
	ShowCommand bool
}

// Environment is the host state an invocation reads. Nothing is taken from
// the ambient process state.
type Environment struct {
	// Vars is the base environment of the tool process.
	Vars map[string]string
	// Source is where pass-through variables are read from. Nil means Vars.
	Source map[string]string
	// WorkDir is the working directory of the tool process and the base for
	// relative paths in the request.
	WorkDir string
	// TempDir is the parent of scratch directories made as the current
	// principal. Empty means the system default.
	TempDir string
}

// RunIO wires the tool's standard streams. Nil writers fall back to the
// host's stdout and stderr.
type RunIO struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Result is what an invocation did.
type Result struct {
	// State is StateDone or StateFailed.
	State State
	// ExitCode is the tool's exit code, or -1 when it never ran.
	ExitCode int
	// FinalMessage is the published final message on success.
	FinalMessage string
	// Command is the full argv, elevation prefix included.
	Command []string

	Forwarded []string
	Missing   []string
}
